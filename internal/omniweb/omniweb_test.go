package omniweb

import (
	"strings"
	"testing"
	"time"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

const sampleListing = `YYYY DOY HR MN    B_mag    Speed   Density  Pressure     E
2022  15 12  0     5.43    412.0      4.21      1.42      0.57
2022  15 12  1     5.50    415.3      4.18      1.44      0.61
2022  15 12  2  9999.99  99999.9    999.99     99.99    999.99
`

func parseSample(t *testing.T) *timeseries.Table {
	t.Helper()
	b := timeseries.NewBuilder(TableName, ColumnNames(DefaultVariables)...)
	if err := Parse(strings.NewReader(sampleListing), "sample", DefaultVariables, b); err != nil {
		t.Fatalf("parse: %v", err)
	}
	tbl, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return tbl
}

func TestParseBuildsTimestampFromDOY(t *testing.T) {
	tbl := parseSample(t)
	if tbl.Len() != 3 {
		t.Fatalf("rows: got %d, want 3", tbl.Len())
	}

	// DOY 15 of 2022 is January 15.
	want := time.Date(2022, 1, 15, 12, 0, 0, 0, time.UTC)
	if !tbl.Time(0).Equal(want) {
		t.Errorf("timestamp: got %v, want %v", tbl.Time(0), want)
	}
}

func TestParseValues(t *testing.T) {
	tbl := parseSample(t)

	row, ok := tbl.At(time.Date(2022, 1, 15, 12, 1, 0, 0, time.UTC))
	if !ok {
		t.Fatal("minute 1 not found")
	}
	want := []float64{5.50, 415.3, 4.18, 1.44, 0.61}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("column %d: got %v, want %v", i, row[i], w)
		}
	}
}

func TestParseSentinelsBecomeMissing(t *testing.T) {
	tbl := parseSample(t)

	row, ok := tbl.At(time.Date(2022, 1, 15, 12, 2, 0, 0, time.UTC))
	if !ok {
		t.Fatal("sentinel row not found")
	}
	for i, col := range ColumnNames(DefaultVariables) {
		if !timeseries.IsMissing(row[i]) {
			t.Errorf("%s: sentinel surfaced as numeric value %v", col, row[i])
		}
	}

	// No sentinel may remain anywhere in the parsed table.
	for _, col := range ColumnNames(DefaultVariables) {
		vals, _ := tbl.Column(col)
		for i, v := range vals {
			for _, variable := range DefaultVariables {
				if v == variable.Fill {
					t.Errorf("%s row %d: fill value %v present as data", col, i, v)
				}
			}
		}
	}
}

func TestParseSkipsHeaderNoise(t *testing.T) {
	noisy := "<html><pre>\n" + sampleListing + "</pre>\n"
	b := timeseries.NewBuilder(TableName, ColumnNames(DefaultVariables)...)
	if err := Parse(strings.NewReader(noisy), "noisy", DefaultVariables, b); err != nil {
		t.Fatalf("parse with markup: %v", err)
	}
	if b.Len() != 3 {
		t.Errorf("rows: got %d, want 3", b.Len())
	}
}

func TestParseShortDataRowIsError(t *testing.T) {
	short := "2022  15 12  0   5.43  412.0\n"
	b := timeseries.NewBuilder(TableName, ColumnNames(DefaultVariables)...)
	err := Parse(strings.NewReader(short), "omni_min_2022.lst", DefaultVariables, b)
	if err == nil {
		t.Fatal("expected error for short data row")
	}
	if !strings.Contains(err.Error(), "omni_min_2022.lst") {
		t.Errorf("error does not name source: %v", err)
	}
}

func TestParseEmptyIsError(t *testing.T) {
	b := timeseries.NewBuilder(TableName, ColumnNames(DefaultVariables)...)
	if err := Parse(strings.NewReader("# nothing\n"), "empty", DefaultVariables, b); err == nil {
		t.Fatal("expected error for listing without data rows")
	}
}

func TestRequestURL(t *testing.T) {
	u := RequestURL(2022, DefaultVariables)
	for _, frag := range []string{"start_date=20220101", "end_date=20221231", "res=min", "vars=13", "vars=28"} {
		if !strings.Contains(u, frag) {
			t.Errorf("request URL missing %q: %s", frag, u)
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(2022); got != "omni_min_2022.lst" {
		t.Errorf("FileName: got %q", got)
	}
}
