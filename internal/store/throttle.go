package store

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled enforces the request quota of the remote store on the client
// side. Reads wait for a token; writes fail fast with ErrStoreRateLimited so
// the dispatcher decides whether to retry.
type Throttled struct {
	next    Adapter
	limiter *rate.Limiter
}

// Throttle wraps next with a limit of perSecond requests and the given burst.
func Throttle(next Adapter, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) GetAll(ctx context.Context, table Table) ([]Record, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("get all %s: %w: %w", table, ErrStoreRateLimited, err)
	}
	return t.next.GetAll(ctx, table)
}

func (t *Throttled) allow(op string, table Table) error {
	if !t.limiter.Allow() {
		return fmt.Errorf("%s %s: %w", op, table, ErrStoreRateLimited)
	}
	return nil
}

func (t *Throttled) Append(ctx context.Context, table Table, fields map[string]string) (RecordRef, error) {
	if err := t.allow("append", table); err != nil {
		return RecordRef{}, err
	}
	return t.next.Append(ctx, table, fields)
}

func (t *Throttled) UpdateField(ctx context.Context, table Table, ref RecordRef, field, value string) error {
	if err := t.allow("update", table); err != nil {
		return err
	}
	return t.next.UpdateField(ctx, table, ref, field, value)
}

func (t *Throttled) Delete(ctx context.Context, table Table, ref RecordRef) error {
	if err := t.allow("delete", table); err != nil {
		return err
	}
	return t.next.Delete(ctx, table, ref)
}
