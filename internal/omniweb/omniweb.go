// Package omniweb fetches and parses near-Earth solar-wind parameters from
// the NASA/GSFC OMNIWeb service.
//
// Retrievals are year-partitioned listings in the high-resolution format:
// whitespace-delimited rows keyed by year, day-of-year, hour and minute,
// followed by the requested variables in request order. Each variable has
// its own documented fill value, which maps to an explicit missing value.
package omniweb

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// TableName is the source name solar-wind tables carry into joins.
const TableName = "omni"

// BaseURL is the OMNIWeb retrieval CGI endpoint.
const BaseURL = "https://omniweb.gsfc.nasa.gov/cgi/nx1.cgi"

// Variable binds an OMNIWeb high-resolution variable code to a column name
// and its fill value.
type Variable struct {
	Code int
	Name string
	Fill float64
}

// DefaultVariables is the fixed solar-wind selection of the pipeline, in
// request order. The parser binds listing columns positionally after the
// YYYY DOY HR MN key, so changing the selection only means changing this
// slice.
var DefaultVariables = []Variable{
	{Code: 13, Name: "b_magnitude", Fill: 9999.99},
	{Code: 21, Name: "flow_speed", Fill: 99999.9},
	{Code: 23, Name: "proton_density", Fill: 999.99},
	{Code: 27, Name: "flow_pressure", Fill: 99.99},
	{Code: 28, Name: "electric_field", Fill: 999.99},
}

// ColumnNames returns the column names of a variable selection, in order.
func ColumnNames(vars []Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// RequestURL builds the retrieval URL for one calendar year of minute data.
func RequestURL(year int, vars []Variable) string {
	values := url.Values{}
	values.Set("activity", "retrieve")
	values.Set("res", "min")
	values.Set("spacecraft", "omni_min")
	values.Set("start_date", fmt.Sprintf("%04d0101", year))
	values.Set("end_date", fmt.Sprintf("%04d1231", year))
	for _, v := range vars {
		values.Add("vars", strconv.Itoa(v.Code))
	}
	return BaseURL + "?" + values.Encode()
}

// FileName returns the local file name for one year of raw data.
func FileName(year int) string {
	return fmt.Sprintf("omni_min_%04d.lst", year)
}

// Parse reads one OMNIWeb listing into a builder. Non-data lines (headers,
// HTML noise around the listing) are skipped; a line that starts with a
// plausible year but fails to parse is an error naming the source and line.
func Parse(r io.Reader, name string, vars []Variable, b *timeseries.Builder) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	rows := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		year, err := strconv.Atoi(fields[0])
		if err != nil || year < 1963 || year > 2100 {
			// Header or surrounding markup.
			continue
		}

		if len(fields) < 4+len(vars) {
			return fmt.Errorf("%s: line %d: %d fields, want %d", name, lineNo, len(fields), 4+len(vars))
		}

		ts, err := parseKey(fields[0], fields[1], fields[2], fields[3])
		if err != nil {
			return fmt.Errorf("%s: line %d: %w", name, lineNo, err)
		}

		values := make([]float64, len(vars))
		for i, v := range vars {
			x, err := strconv.ParseFloat(fields[4+i], 64)
			if err != nil {
				return fmt.Errorf("%s: line %d: bad %s value %q", name, lineNo, v.Name, fields[4+i])
			}
			if x == v.Fill {
				x = timeseries.Missing()
			}
			values[i] = x
		}

		if err := b.Append(ts, values...); err != nil {
			return fmt.Errorf("%s: line %d: %w", name, lineNo, err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: no data rows", name)
	}
	return nil
}

// ParseFile parses one year file into a Table.
func ParseFile(path string, vars []Variable) (*timeseries.Table, error) {
	b := timeseries.NewBuilder(TableName, ColumnNames(vars)...)
	if err := parseFileInto(path, vars, b); err != nil {
		return nil, err
	}
	return b.Finish()
}

// LoadDir parses every omni_min_*.lst file under dir into one table.
func LoadDir(dir string, vars []Variable) (*timeseries.Table, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "omni_min_*.lst"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("omniweb: no year files under %s", dir)
	}
	sort.Strings(matches)

	b := timeseries.NewBuilder(TableName, ColumnNames(vars)...)
	for _, path := range matches {
		if err := parseFileInto(path, vars, b); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func parseFileInto(path string, vars []Variable, b *timeseries.Builder) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Parse(f, path, vars, b)
}

// parseKey builds a UTC timestamp from embedded year, day-of-year, hour and
// minute fields.
func parseKey(yearS, doyS, hourS, minS string) (time.Time, error) {
	year, err := strconv.Atoi(yearS)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad year %q", yearS)
	}
	doy, err := strconv.Atoi(doyS)
	if err != nil || doy < 1 || doy > 366 {
		return time.Time{}, fmt.Errorf("bad day-of-year %q", doyS)
	}
	hour, err := strconv.Atoi(hourS)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("bad hour %q", hourS)
	}
	min, err := strconv.Atoi(minS)
	if err != nil || min < 0 || min > 59 {
		return time.Time{}, fmt.Errorf("bad minute %q", minS)
	}
	return time.Date(year, 1, 1, hour, min, 0, 0, time.UTC).AddDate(0, 0, doy-1), nil
}
