package dispatch

import (
	"fmt"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// Kind distinguishes the three mutation shapes the store supports.
type Kind int

const (
	AppendRow Kind = iota + 1
	UpdateCell
	DeleteRow
)

func (k Kind) String() string {
	switch k {
	case AppendRow:
		return "append"
	case UpdateCell:
		return "update"
	case DeleteRow:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Mutation is one store write. UserID names the user whose cached view the
// write affects.
type Mutation struct {
	Kind   Kind
	Table  store.Table
	UserID string

	// AppendRow
	Fields map[string]string

	// UpdateCell, DeleteRow
	Ref   store.RecordRef
	Field string
	Value string

	// Refresh forces a full reload of Table after the write instead of
	// relying on write-through patching and per-user invalidation.
	Refresh bool
}

func Append(table store.Table, userID string, fields map[string]string) Mutation {
	return Mutation{Kind: AppendRow, Table: table, UserID: userID, Fields: fields}
}

func Update(table store.Table, ref store.RecordRef, userID, field, value string) Mutation {
	return Mutation{Kind: UpdateCell, Table: table, UserID: userID, Ref: ref, Field: field, Value: value}
}

func Delete(table store.Table, ref store.RecordRef, userID string) Mutation {
	return Mutation{Kind: DeleteRow, Table: table, UserID: userID, Ref: ref}
}

// Result is the outcome of one mutation. Record is set for appends.
type Result struct {
	Mutation Mutation
	Record   store.Record
}
