package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonColumn adapts an arbitrary Go value to a JSONB column, implementing
// the tagged-record approach of spec.md §9: content/fitness/metrics are
// explicit structs, not free-form maps, but travel as JSON on the wire to
// the database. Unknown keys are tolerated on Scan via json.Unmarshal's
// default behavior; writes always emit the documented field set.
type jsonColumn[T any] struct {
	V T
}

func (j jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("store: marshal json column: %w", err)
	}
	return b, nil
}

func (j *jsonColumn[T]) Scan(src interface{}) error {
	if src == nil {
		var zero T
		j.V = zero
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: unsupported scan source %T for json column", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &j.V)
}

// jsonColumnPtr adapts a nullable JSONB column to a *T, used where the model
// field itself is a pointer (e.g. Deployment.MetricsBaseline before the
// first regression evaluation has run).
type jsonColumnPtr[T any] struct {
	V *T
}

func (j jsonColumnPtr[T]) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("store: marshal nullable json column: %w", err)
	}
	return b, nil
}

func (j *jsonColumnPtr[T]) Scan(src interface{}) error {
	if src == nil {
		j.V = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: unsupported scan source %T for nullable json column", src)
	}
	if len(raw) == 0 {
		j.V = nil
		return nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	j.V = &out
	return nil
}
