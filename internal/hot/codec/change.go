package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/schema"
)

type changeHeader struct {
	Kind   domain.ChangeKind `json:"kind"`
	Table  string            `json:"table"`
	ID     string            `json:"id"`
	Fields json.RawMessage   `json:"fields,omitempty"`
}

// MarshalChange renders a change record as the text stored in the change log.
// Field order is preserved.
func MarshalChange(c domain.ChangeRecord) (string, error) {
	var fields domain.Fields
	switch rec := c.(type) {
	case domain.InsertChange:
	case domain.UpdateChange:
		fields = rec.Fields
	case domain.DeleteChange:
		fields = rec.Fields
	default:
		return "", fmt.Errorf("%w: change %T", ErrUnsupportedValue, c)
	}

	ref := c.Ref()
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	writeString(&buf, string(c.Kind()))
	buf.WriteString(`,"table":`)
	writeString(&buf, ref.Table)
	buf.WriteString(`,"id":`)
	writeString(&buf, ref.ID)

	if c.Kind() != domain.ChangeInsert {
		buf.WriteString(`,"fields":{`)
		for i, f := range fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, f.Column)
			buf.WriteByte(':')
			token, err := Marshal(f.Value)
			if err != nil {
				return "", fmt.Errorf("column %s: %w", f.Column, err)
			}
			buf.Write(token)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// UnmarshalChange parses change-log text. Values of tables known to reg are
// decoded by column kind; anything else falls back to UnmarshalUntyped.
func UnmarshalChange(text []byte, reg *schema.Registry) (domain.ChangeRecord, error) {
	var h changeHeader
	if err := json.Unmarshal(text, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if h.Table == "" {
		return nil, fmt.Errorf("%w: missing table", ErrMalformedChange)
	}
	ref := domain.RowRef{Table: h.Table, ID: h.ID}

	switch h.Kind {
	case domain.ChangeInsert:
		return domain.InsertChange{RowRef: ref}, nil
	case domain.ChangeUpdate, domain.ChangeDelete:
		var entity *schema.Entity
		if reg != nil {
			entity, _ = reg.ByTable(h.Table)
		}
		fields, err := unmarshalFields(h.Fields, entity)
		if err != nil {
			return nil, fmt.Errorf("%s %s/%s: %w", h.Kind, h.Table, h.ID, err)
		}
		if h.Kind == domain.ChangeUpdate {
			return domain.UpdateChange{RowRef: ref, Fields: fields}, nil
		}
		return domain.DeleteChange{RowRef: ref, Fields: fields}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedChange, h.Kind)
	}
}

func unmarshalFields(data json.RawMessage, entity *schema.Entity) (domain.Fields, error) {
	if len(data) == 0 || isNull(trimSpace(data)) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: fields must be an object", ErrMalformedChange)
	}

	var fields domain.Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedChange, err)
		}
		column, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field name %v", ErrMalformedChange, tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedChange, column, err)
		}

		var v domain.Value
		if col, known := lookupColumn(entity, column); known {
			v, err = Unmarshal(col.Kind, raw)
		} else {
			v, err = UnmarshalUntyped(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", column, err)
		}
		fields = append(fields, domain.Field{Column: column, Value: v})
	}
	return fields, nil
}

func lookupColumn(entity *schema.Entity, name string) (schema.Column, bool) {
	if entity == nil {
		return schema.Column{}, false
	}
	return entity.Column(name)
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
