package worker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// DefaultTimeField is used when a model does not name its time column.
const DefaultTimeField = "time"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// LoadFrame reads the CSV data source at path for model m.
//
// The header row names the columns. The time column (m.TimeField, default "time")
// becomes Frame.Times; every other column must be numeric. When m.Columns is set
// only those columns are kept, in that order. Empty cells and absent columns fall
// back to m.DefaultValues. Rows are sorted by time unless sorted is true.
func LoadFrame(path string, m models.Model, sorted bool) (*models.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data source: %w", err)
	}
	defer f.Close()
	return ReadFrame(f, m, sorted)
}

// ReadFrame is LoadFrame over an arbitrary reader.
func ReadFrame(r io.Reader, m models.Model, sorted bool) (*models.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("data source is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read data source header: %w", err)
	}

	timeField := m.TimeField
	if timeField == "" {
		timeField = DefaultTimeField
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	timeIdx, ok := pos[timeField]
	if !ok {
		return nil, fmt.Errorf("data source has no time column %q", timeField)
	}

	columns := m.Columns
	if len(columns) == 0 {
		for _, h := range header {
			if name := strings.TrimSpace(h); name != timeField {
				columns = append(columns, name)
			}
		}
	}

	defaults, err := numericDefaults(m.DefaultValues, columns)
	if err != nil {
		return nil, err
	}
	src := make([]int, len(columns))
	for i, c := range columns {
		idx, ok := pos[c]
		if !ok {
			if _, hasDefault := defaults[c]; !hasDefault {
				return nil, fmt.Errorf("data source has no column %q and no default value", c)
			}
			idx = -1
		}
		src[i] = idx
	}

	frame := &models.Frame{Columns: append([]string(nil), columns...)}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read data source line %d: %w", line, err)
		}

		ts, err := parseTime(rec[timeIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, len(columns))
		for i, c := range columns {
			cell := ""
			if src[i] >= 0 && src[i] < len(rec) {
				cell = strings.TrimSpace(rec[src[i]])
			}
			if cell == "" {
				d, ok := defaults[c]
				if !ok {
					return nil, fmt.Errorf("line %d: column %q is empty and has no default value", line, c)
				}
				row[i] = d
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %q: %q is not numeric", line, c, cell)
			}
			row[i] = v
		}
		frame.Times = append(frame.Times, ts)
		frame.Rows = append(frame.Rows, row)
	}

	if !sorted {
		sortByTime(frame)
	}
	return frame, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// numericDefaults converts the defaults of the selected columns only, so an
// odd value for a column nobody reads cannot fail the job. Booleans map to 1/0.
func numericDefaults(in map[string]any, columns []string) (map[string]float64, error) {
	out := make(map[string]float64, len(columns))
	for _, k := range columns {
		v, ok := in[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		case bool:
			if n {
				out[k] = 1
			} else {
				out[k] = 0
			}
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("default value for %q: %q is not numeric", k, n)
			}
			out[k] = f
		case nil:
		default:
			return nil, fmt.Errorf("default value for %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}

type byTime struct{ f *models.Frame }

func (b byTime) Len() int           { return len(b.f.Times) }
func (b byTime) Less(i, j int) bool { return b.f.Times[i].Before(b.f.Times[j]) }
func (b byTime) Swap(i, j int) {
	b.f.Times[i], b.f.Times[j] = b.f.Times[j], b.f.Times[i]
	b.f.Rows[i], b.f.Rows[j] = b.f.Rows[j], b.f.Rows[i]
}

func sortByTime(f *models.Frame) {
	sort.Stable(byTime{f})
}
