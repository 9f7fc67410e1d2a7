// Package gfz parses the GFZ Potsdam definitive Kp/ap/Ap/SN/F10.7 dataset,
// a single long-running flat file of daily indices.
//
// Each data line carries one day: calendar fields, eight 3-hourly Kp and ap
// values, the daily Ap, the sunspot number and observed/adjusted F10.7.
// Upstream marks missing values as -1; they map to explicit missing values.
package gfz

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// TableName is the source name index tables carry into joins.
const TableName = "gfz"

// FileURL is the fixed upstream location of the dataset.
const FileURL = "https://kp.gfz-potsdam.de/app/files/Kp_ap_Ap_SN_F107_since_1932.txt"

// FileName is the local file name of the raw download.
const FileName = "Kp_ap_Ap_SN_F107_since_1932.txt"

// Columns of the daily table, in order.
var Columns = []string{"kp_mean", "ap", "ssn", "f107_obs", "f107_adj"}

// Day holds one parsed day.
type Day struct {
	Date   time.Time
	Kp     [8]float64 // 3-hourly Kp (0-9 scale), missing preserved
	Ap3    [8]float64 // 3-hourly ap
	Ap     float64    // daily Ap
	SSN    float64    // sunspot number
	F107o  float64    // observed F10.7
	F107a  float64    // adjusted F10.7
}

// KpMean returns the mean of the available 3-hourly Kp values, or missing
// when the whole day is unobserved.
func (d *Day) KpMean() float64 {
	sum, n := 0.0, 0
	for _, v := range d.Kp {
		if timeseries.IsMissing(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return timeseries.Missing()
	}
	return sum / float64(n)
}

// parseLine parses one data line.
//
// Format (whitespace-delimited):
//
//	Col  0-2:  Year Month Day
//	Col  3-4:  Day-of-year, modified Julian day
//	Col  5-6:  Bartels rotation, day within rotation
//	Col  7-14: Kp1..Kp8 (3-hourly)
//	Col 15-22: ap1..ap8 (3-hourly)
//	Col 23:    Ap (daily)
//	Col 24:    SN (sunspot number)
//	Col 25-26: F10.7 observed, F10.7 adjusted
func parseLine(line string) (Day, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 27 {
		return Day{}, false, fmt.Errorf("%d fields, want 27", len(fields))
	}

	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1900 || year > 2100 {
		return Day{}, false, nil
	}
	month, _ := strconv.Atoi(fields[1])
	day, _ := strconv.Atoi(fields[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Day{}, false, nil
	}

	d := Day{Date: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
	for i := 0; i < 8; i++ {
		d.Kp[i] = indexValue(fields[7+i])
		d.Ap3[i] = indexValue(fields[15+i])
	}
	d.Ap = indexValue(fields[23])
	d.SSN = indexValue(fields[24])
	d.F107o = indexValue(fields[25])
	d.F107a = indexValue(fields[26])
	return d, true, nil
}

// indexValue parses one index field, mapping the -1 fill to missing.
func indexValue(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return timeseries.Missing()
	}
	return v
}

// Parse reads the dataset, keeping days within [startDate, endDate].
func Parse(r io.Reader, name string, startDate, endDate time.Time) ([]Day, error) {
	var days []Day
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		d, ok, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", name, lineNo, err)
		}
		if !ok {
			continue
		}
		if d.Date.Before(startDate) || d.Date.After(endDate) {
			continue
		}
		days = append(days, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return days, nil
}

// ParseFile parses the local dataset file.
func ParseFile(path string, startDate, endDate time.Time) ([]Day, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path, startDate, endDate)
}

// DailyTable builds a midnight-indexed daily table from parsed days.
func DailyTable(days []Day) (*timeseries.Table, error) {
	b := timeseries.NewBuilder(TableName, Columns...)
	for i := range days {
		d := &days[i]
		if err := b.Append(d.Date, d.KpMean(), d.Ap, d.SSN, d.F107o, d.F107a); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

// ByDate indexes days by UTC calendar date for daily-context attachment.
func ByDate(days []Day) map[time.Time]*Day {
	m := make(map[time.Time]*Day, len(days))
	for i := range days {
		m[days[i].Date] = &days[i]
	}
	return m
}
