package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonb adapts any Go value to a JSONB column for both directions.
// A nil destination pointer scans SQL NULL into the zero value.
type jsonb struct {
	v any
}

func asJSONB(v any) jsonb { return jsonb{v: v} }

func (j jsonb) Value() (driver.Value, error) {
	if j.v == nil {
		return nil, nil
	}
	data, err := json.Marshal(j.v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return data, nil
}

func (j jsonb) Scan(src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("scan jsonb: unsupported type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, j.v); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}
