// Package timeseries provides the typed, time-indexed tables shared by all
// parsers and the timestamp aligner.
//
// A Table is ordered by timestamp, timestamps are unique within a table,
// and gaps are carried as explicit missing values (NaN), never interpolated.
// Tables are immutable once built; merging produces a new derived table.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Missing returns the explicit missing-value marker.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Table is a timestamp-indexed table of named float64 columns for one source.
type Table struct {
	name    string
	times   []time.Time
	columns []string
	data    [][]float64 // data[c][i] = value of columns[c] at times[i]
}

// Builder accumulates rows for a Table. Rows may arrive in any order;
// Finish sorts by timestamp and rejects duplicates.
type Builder struct {
	name    string
	columns []string
	times   []time.Time
	rows    [][]float64
}

// NewBuilder creates a builder for a table with the given source name and
// column names.
func NewBuilder(name string, columns ...string) *Builder {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Builder{name: name, columns: cols}
}

// Append adds one row. The number of values must match the column count.
func (b *Builder) Append(ts time.Time, values ...float64) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("table %s: row has %d values, want %d", b.name, len(values), len(b.columns))
	}
	row := make([]float64, len(values))
	copy(row, values)
	b.times = append(b.times, ts.UTC())
	b.rows = append(b.rows, row)
	return nil
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int {
	return len(b.times)
}

// Finish seals the builder into an immutable Table.
func (b *Builder) Finish() (*Table, error) {
	idx := make([]int, len(b.times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return b.times[idx[i]].Before(b.times[idx[j]])
	})

	t := &Table{
		name:    b.name,
		times:   make([]time.Time, len(b.times)),
		columns: b.columns,
		data:    make([][]float64, len(b.columns)),
	}
	for c := range t.data {
		t.data[c] = make([]float64, len(b.times))
	}
	for i, src := range idx {
		if i > 0 && !t.times[i-1].Before(b.times[src]) {
			return nil, fmt.Errorf("table %s: duplicate timestamp %s", b.name, b.times[src].Format(time.RFC3339))
		}
		t.times[i] = b.times[src]
		for c := range t.columns {
			t.data[c][i] = b.rows[src][c]
		}
	}
	return t, nil
}

// Name returns the source name used for column disambiguation in joins.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.times) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Times returns the (ascending, unique) timestamps.
func (t *Table) Times() []time.Time {
	out := make([]time.Time, len(t.times))
	copy(out, t.times)
	return out
}

// Time returns the timestamp of row i.
func (t *Table) Time(i int) time.Time { return t.times[i] }

// Value returns the value at row i of the named column.
func (t *Table) Value(i int, column string) (float64, bool) {
	for c, name := range t.columns {
		if name == column {
			return t.data[c][i], true
		}
	}
	return 0, false
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for c, col := range t.columns {
		if col == name {
			out := make([]float64, len(t.data[c]))
			copy(out, t.data[c])
			return out, true
		}
	}
	return nil, false
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []float64 {
	out := make([]float64, len(t.columns))
	for c := range t.columns {
		out[c] = t.data[c][i]
	}
	return out
}

// At returns the row for an exact timestamp match.
func (t *Table) At(ts time.Time) ([]float64, bool) {
	i := sort.Search(len(t.times), func(i int) bool { return !t.times[i].Before(ts) })
	if i < len(t.times) && t.times[i].Equal(ts) {
		return t.Row(i), true
	}
	return nil, false
}

// Slice returns a derived table restricted to from <= ts <= to.
func (t *Table) Slice(from, to time.Time) *Table {
	lo := sort.Search(len(t.times), func(i int) bool { return !t.times[i].Before(from) })
	hi := sort.Search(len(t.times), func(i int) bool { return t.times[i].After(to) })
	out := &Table{
		name:    t.name,
		times:   t.times[lo:hi],
		columns: t.columns,
		data:    make([][]float64, len(t.columns)),
	}
	for c := range t.data {
		out.data[c] = t.data[c][lo:hi]
	}
	return out
}

// InnerJoin joins t with one or more tables on exact timestamp equality.
// Only timestamps present in every table survive. Column names of t are kept
// as-is; a later table's column that collides with an already-claimed name
// gets an underscore-separated suffix of that table's source name. Join order
// therefore determines suffix application, never row retention.
func (t *Table) InnerJoin(others ...*Table) (*Table, error) {
	tables := append([]*Table{t}, others...)

	// Membership indexes for every table after the first.
	indexes := make([]map[int64]int, len(tables))
	for k := 1; k < len(tables); k++ {
		m := make(map[int64]int, tables[k].Len())
		for i, ts := range tables[k].times {
			m[ts.UnixNano()] = i
		}
		indexes[k] = m
	}

	// Surviving timestamps, driven by the left table's order.
	var keep []int // row index in t
	rowIdx := make([][]int, len(tables))
	for k := range rowIdx {
		rowIdx[k] = nil
	}
	for i, ts := range t.times {
		key := ts.UnixNano()
		ok := true
		for k := 1; k < len(tables); k++ {
			if _, present := indexes[k][key]; !present {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		keep = append(keep, i)
		for k := 1; k < len(tables); k++ {
			rowIdx[k] = append(rowIdx[k], indexes[k][key])
		}
	}

	// Disambiguated column layout.
	var columns []string
	claimed := make(map[string]bool)
	type colRef struct {
		table int
		col   int
	}
	var refs []colRef
	for k, tbl := range tables {
		for c, name := range tbl.columns {
			out := name
			if claimed[out] {
				out = name + "_" + tbl.name
			}
			if claimed[out] {
				return nil, fmt.Errorf("join: column %q from table %s still ambiguous after suffixing", name, tbl.name)
			}
			claimed[out] = true
			columns = append(columns, out)
			refs = append(refs, colRef{table: k, col: c})
		}
	}

	merged := &Table{
		name:    t.name,
		times:   make([]time.Time, len(keep)),
		columns: columns,
		data:    make([][]float64, len(columns)),
	}
	for c := range merged.data {
		merged.data[c] = make([]float64, len(keep))
	}
	for i, src := range keep {
		merged.times[i] = t.times[src]
	}
	for c, ref := range refs {
		srcTable := tables[ref.table]
		for i := range keep {
			var srcRow int
			if ref.table == 0 {
				srcRow = keep[i]
			} else {
				srcRow = rowIdx[ref.table][i]
			}
			merged.data[c][i] = srcTable.data[ref.col][srcRow]
		}
	}
	return merged, nil
}
