// Package schema holds the static table metadata the change tracker and the
// rollback engine work from.
//
// Entities are declared once at startup:
//
//	reg := schema.NewRegistry()
//	err := reg.Register(schema.Entity{
//	    Name:  "Account",
//	    Table: "account",
//	    Columns: []schema.Column{
//	        {Name: "balance", Kind: schema.KindText},
//	        {Name: "code", Kind: schema.KindBinary},
//	    },
//	})
//
// Nothing here inspects Go types at runtime.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEntity is returned when an entity type or table was never registered.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInvalidEntity is returned for malformed declarations.
	ErrInvalidEntity = errors.New("invalid entity declaration")
)

// DefaultPrimaryKey is used when an Entity leaves PrimaryKey empty.
const DefaultPrimaryKey = "id"

// Kind is the storage kind of a column.
type Kind uint8

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
	KindBinary
	KindJSON
	// KindDecimal holds arbitrary-precision numbers. Values travel as their
	// decimal text so they are never rounded through float64.
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBinary:
		return "binary"
	case KindJSON:
		return "json"
	case KindDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind maps a configured kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "string":
		return KindText, nil
	case "int", "integer", "bigint":
		return KindInt, nil
	case "float", "double", "real":
		return KindFloat, nil
	case "decimal", "numeric":
		return KindDecimal, nil
	case "bool", "boolean":
		return KindBool, nil
	case "binary", "bytes", "bytea", "blob":
		return KindBinary, nil
	case "json", "jsonb":
		return KindJSON, nil
	default:
		return 0, fmt.Errorf("%w: unknown column kind %q", ErrInvalidEntity, name)
	}
}

// Plain reports whether values of this kind pass through the codec unchanged.
func (k Kind) Plain() bool {
	return k != KindBinary && k != KindJSON
}

// Column is one non-key column of an entity table.
type Column struct {
	Name string
	Kind Kind
}

// Entity declares how an entity type is stored.
type Entity struct {
	Name       string
	Table      string
	PrimaryKey string
	Columns    []Column

	index map[string]int
}

// Column returns the declared column with the given name.
func (e *Entity) Column(name string) (Column, bool) {
	i, ok := e.index[name]
	if !ok {
		return Column{}, false
	}
	return e.Columns[i], true
}

// ColumnNames returns the non-key column names in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is one entity row handed to the tracker and the entity store. Values
// are aligned with the entity's Columns.
type Row struct {
	ID     string
	Values []any
}

// IDs returns the ids of rows in order.
func IDs(rows []Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func (e *Entity) validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntity)
	}
	if e.Table == "" {
		return fmt.Errorf("%w: %s has no table", ErrInvalidEntity, e.Name)
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = DefaultPrimaryKey
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidEntity, e.Name)
	}
	e.index = make(map[string]int, len(e.Columns))
	for i, c := range e.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: %s column %d has no name", ErrInvalidEntity, e.Name, i)
		}
		if c.Name == e.PrimaryKey {
			return fmt.Errorf("%w: %s lists primary key %q as a column", ErrInvalidEntity, e.Name, c.Name)
		}
		if _, dup := e.index[c.Name]; dup {
			return fmt.Errorf("%w: %s has duplicate column %q", ErrInvalidEntity, e.Name, c.Name)
		}
		e.index[c.Name] = i
	}
	return nil
}
