package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RowPrediction is the pipeline output for one input row.
type RowPrediction struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Prediction is one model's output, labelled with the model's target.
type Prediction struct {
	Target string          `json:"target"`
	Result []RowPrediction `json:"result"`
}

// ResultSet maps target columns to predictions. Keys keep the order in which
// they were first appended, and that order survives JSON encoding.
type ResultSet struct {
	keys   []string
	values map[string][]Prediction
}

// NewResultSet returns an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{values: make(map[string][]Prediction)}
}

// Append adds p to the list stored under column.
func (r *ResultSet) Append(column string, p Prediction) {
	if r.values == nil {
		r.values = make(map[string][]Prediction)
	}
	if _, ok := r.values[column]; !ok {
		r.keys = append(r.keys, column)
	}
	r.values[column] = append(r.values[column], p)
}

// Keys returns the target columns in first-appearance order.
func (r *ResultSet) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the predictions stored under column.
func (r *ResultSet) Get(column string) []Prediction {
	if r == nil {
		return nil
	}
	return r.values[column]
}

// Len returns the number of target columns.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Clone returns a deep copy of r. Cloning nil yields nil.
func (r *ResultSet) Clone() *ResultSet {
	if r == nil {
		return nil
	}
	c := NewResultSet()
	for _, k := range r.keys {
		for _, p := range r.values[k] {
			rows := make([]RowPrediction, len(p.Result))
			copy(rows, p.Result)
			c.Append(k, Prediction{Target: p.Target, Result: rows})
		}
	}
	return c
}

// MarshalJSON encodes r as a JSON object with keys in insertion order.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result set: expected object, got %v", tok)
	}

	*r = ResultSet{values: make(map[string][]Prediction)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("result set: expected key, got %v", tok)
		}
		var preds []Prediction
		if err := dec.Decode(&preds); err != nil {
			return fmt.Errorf("result set key %q: %w", key, err)
		}
		for _, p := range preds {
			r.Append(key, p)
		}
		if len(preds) == 0 {
			if _, ok := r.values[key]; !ok {
				r.keys = append(r.keys, key)
				r.values[key] = []Prediction{}
			}
		}
	}
	_, err = dec.Token()
	return err
}
