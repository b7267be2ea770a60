package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Lineage is the ordered "known-as" list of an actor's previous canonical
// identifiers. Values are never modified in place: Append returns a new
// slice. The only way to shrink a lineage is to tombstone its owner.
type Lineage []string

// Append returns a new lineage with uris added in order, skipping empty values
// and identifiers that are already present.
func (l Lineage) Append(uris ...string) Lineage {
	out := make(Lineage, len(l), len(l)+len(uris))
	copy(out, l)
	for _, uri := range uris {
		if uri == "" || out.Contains(uri) {
			continue
		}
		out = append(out, uri)
	}
	return out
}

func (l Lineage) Contains(uri string) bool {
	for _, u := range l {
		if u == uri {
			return true
		}
	}
	return false
}

// Value stores the lineage as a JSON array.
func (l Lineage) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Lineage) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = Lineage{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("lineage: unsupported type %T", src)
	}
	var uris []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &uris); err != nil {
			return fmt.Errorf("lineage: %w", err)
		}
	}
	*l = Lineage(uris)
	if *l == nil {
		*l = Lineage{}
	}
	return nil
}
