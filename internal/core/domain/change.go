package domain

// RowRef identifies one row of an entity table.
type RowRef struct {
	Table string
	ID    string
}

// ChangeKind is the tag written into the change log for each record.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeRecord is one row-level effect of a hot block. The set of
// implementations is closed: InsertChange, UpdateChange and DeleteChange.
type ChangeRecord interface {
	Kind() ChangeKind
	Ref() RowRef
	isChange()
}

// InsertChange records a newly created row; undo deletes it.
type InsertChange struct {
	RowRef
}

// UpdateChange records a row that existed; undo restores Fields.
type UpdateChange struct {
	RowRef
	Fields Fields
}

// DeleteChange records a removed row; undo reinserts ID plus Fields.
type DeleteChange struct {
	RowRef
	Fields Fields
}

func (InsertChange) Kind() ChangeKind { return ChangeInsert }
func (UpdateChange) Kind() ChangeKind { return ChangeUpdate }
func (DeleteChange) Kind() ChangeKind { return ChangeDelete }

func (c InsertChange) Ref() RowRef { return c.RowRef }
func (c UpdateChange) Ref() RowRef { return c.RowRef }
func (c DeleteChange) Ref() RowRef { return c.RowRef }

func (InsertChange) isChange() {}
func (UpdateChange) isChange() {}
func (DeleteChange) isChange() {}

// ChangeLogEntry is one immutable row of the change log.
type ChangeLogEntry struct {
	BlockHeight int64
	Sequence    int64
	Change      ChangeRecord
}

// HotBlock is the bookkeeping record of a height that can still be rolled back.
type HotBlock struct {
	Height     int64
	Hash       string
	ParentHash string
}
