// Package iaga parses INTERMAGNET magnetometer files in IAGA-2002 format.
//
// Files are per-station, per-day, minute-resolution. The header block is
// skipped up to the column line starting with "DATE"; data rows carry
// date, time, day-of-year and the X, Y, Z, F field components. The fill
// values 99999.00 (missing) and 88888.00 (not observed) map to explicit
// missing values. The horizontal intensity H is derived as hypot(X, Y).
package iaga

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// TableName is the source name magnetometer tables carry into joins.
const TableName = "mag"

// Columns of the parsed table, in order.
var Columns = []string{"x", "y", "z", "h"}

const (
	fillMissing     = 99999.0
	fillNotObserved = 88888.0
)

// ValidStationCode reports whether code looks like an IAGA observatory code
// (three or four ASCII letters).
func ValidStationCode(code string) bool {
	if len(code) < 3 || len(code) > 4 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Parse reads one IAGA-2002 stream into a builder. The name parameter is
// used only for error messages.
func Parse(r io.Reader, name string, b *timeseries.Builder) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	inHeader := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if inHeader {
			if strings.HasPrefix(line, "DATE") {
				inHeader = false
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 7 {
			return fmt.Errorf("%s: line %d: %d fields, want 7 (DATE TIME DOY X Y Z F)", name, lineNo, len(fields))
		}

		ts, err := parseTimestamp(fields[0], fields[1])
		if err != nil {
			return fmt.Errorf("%s: line %d: %w", name, lineNo, err)
		}

		var comp [3]float64 // x, y, z
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[3+i], 64)
			if err != nil {
				return fmt.Errorf("%s: line %d: bad field value %q", name, lineNo, fields[3+i])
			}
			if v == fillMissing || v == fillNotObserved {
				v = timeseries.Missing()
			}
			comp[i] = v
		}

		h := math.Hypot(comp[0], comp[1])
		if timeseries.IsMissing(comp[0]) || timeseries.IsMissing(comp[1]) {
			h = timeseries.Missing()
		}

		if err := b.Append(ts, comp[0], comp[1], comp[2], h); err != nil {
			return fmt.Errorf("%s: line %d: %w", name, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if inHeader {
		return fmt.Errorf("%s: no DATE header line found", name)
	}
	return nil
}

// ParseFile parses a single IAGA-2002 file into a Table. Files with a .gz
// suffix are decompressed transparently.
func ParseFile(path string) (*timeseries.Table, error) {
	b := timeseries.NewBuilder(TableName, Columns...)
	if err := parseFileInto(path, b); err != nil {
		return nil, err
	}
	return b.Finish()
}

func parseFileInto(path string, b *timeseries.Builder) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return Parse(r, path, b)
}

// LoadStation builds one table from a station directory laid out as
// <dir>/<year>/<station><year>*.min[.gz]. The station code is the directory
// base name. Every matching file must parse; the first failure aborts with
// an error naming the file.
func LoadStation(dir string) (*timeseries.Table, error) {
	station := strings.ToLower(filepath.Base(dir))
	if !ValidStationCode(station) {
		return nil, fmt.Errorf("iaga: %q is not a station directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("iaga: %w", err)
	}

	var years []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(e.Name()); err == nil {
			years = append(years, y)
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("iaga: no year directories under %s", dir)
	}
	sort.Ints(years)

	b := timeseries.NewBuilder(TableName, Columns...)
	parsed := 0
	for _, year := range years {
		yearDir := filepath.Join(dir, strconv.Itoa(year))
		for _, pattern := range []string{"%s%d*.min", "%s%d*.min.gz"} {
			matches, err := filepath.Glob(filepath.Join(yearDir, fmt.Sprintf(pattern, station, year)))
			if err != nil {
				return nil, err
			}
			sort.Strings(matches)
			for _, path := range matches {
				if err := parseFileInto(path, b); err != nil {
					return nil, err
				}
				parsed++
			}
		}
	}
	if parsed == 0 {
		return nil, fmt.Errorf("iaga: no %s minute files under %s", station, dir)
	}
	return b.Finish()
}

func parseTimestamp(date, clock string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05.000", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, date+" "+clock); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q %q", date, clock)
}
