package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLAdapter stores every logical table in one `sheet_rows` table: the sheet
// name, an auto-increment id used as the RecordRef, and the cells as a JSON
// object. It runs unchanged on sqlite3 and postgres.
type SQLAdapter struct {
	db *sqlx.DB
}

func NewSQLAdapter(db *sqlx.DB) *SQLAdapter { return &SQLAdapter{db: db} }

// EnsureTable creates the sheet_rows table and its index if missing (idempotent).
func (a *SQLAdapter) EnsureTable(ctx context.Context) error {
	idCol := "id BIGSERIAL PRIMARY KEY"
	if a.db.DriverName() == "sqlite3" {
		idCol = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	ddl := `CREATE TABLE IF NOT EXISTS sheet_rows (
		` + idCol + `,
		sheet TEXT NOT NULL,
		cells TEXT NOT NULL
	)`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure sheet_rows: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet ON sheet_rows (sheet, id)`
	if _, err := a.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("ensure sheet_rows index: %w", err)
	}
	return nil
}

type sheetRow struct {
	ID    int64  `db:"id"`
	Cells string `db:"cells"`
}

func (a *SQLAdapter) GetAll(ctx context.Context, table Table) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	q := a.db.Rebind(`SELECT id, cells FROM sheet_rows WHERE sheet = ? ORDER BY id ASC`)
	var rows []sheetRow
	if err := a.db.SelectContext(ctx, &rows, q, string(table)); err != nil {
		return nil, fmt.Errorf("get all %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		fields := map[string]string{}
		// a row with unreadable cells is returned empty; decoding it later
		// fails as a malformed record and the scan skips it
		_ = json.Unmarshal([]byte(r.Cells), &fields)
		out = append(out, Record{Ref: RecordRef{id: r.ID}, Fields: fields})
	}
	return out, nil
}

func (a *SQLAdapter) Append(ctx context.Context, table Table, fields map[string]string) (RecordRef, error) {
	norm, err := normalizeFields(table, fields)
	if err != nil {
		return RecordRef{}, err
	}
	cells, err := json.Marshal(norm)
	if err != nil {
		return RecordRef{}, fmt.Errorf("append %s: %w", table, err)
	}
	q := a.db.Rebind(`INSERT INTO sheet_rows (sheet, cells) VALUES (?, ?) RETURNING id`)
	var id int64
	if err := a.db.QueryRowxContext(ctx, q, string(table), string(cells)).Scan(&id); err != nil {
		return RecordRef{}, fmt.Errorf("append %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	return RecordRef{id: id}, nil
}

func (a *SQLAdapter) UpdateField(ctx context.Context, table Table, ref RecordRef, field, value string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if !HasColumn(table, field) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, table, field)
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var raw string
	sel := a.db.Rebind(`SELECT cells FROM sheet_rows WHERE id = ? AND sheet = ?`)
	if err := tx.GetContext(ctx, &raw, sel, ref.id, string(table)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, ref)
		}
		return fmt.Errorf("update %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	cells := map[string]string{}
	_ = json.Unmarshal([]byte(raw), &cells)
	cells[field] = value
	encoded, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	upd := a.db.Rebind(`UPDATE sheet_rows SET cells = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, upd, string(encoded), ref.id); err != nil {
		return fmt.Errorf("update %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	return nil
}

func (a *SQLAdapter) Delete(ctx context.Context, table Table, ref RecordRef) error {
	if err := checkTable(table); err != nil {
		return err
	}
	q := a.db.Rebind(`DELETE FROM sheet_rows WHERE id = ? AND sheet = ?`)
	res, err := a.db.ExecContext(ctx, q, ref.id, string(table))
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", table, ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, ref)
	}
	return nil
}
