// Package ismr retrieves and preprocesses GNSS scintillation-monitor
// receiver (ISMR) data.
//
// The remote webservice serves per-satellite S4 observations for a station
// and date range. The client paginates gently: fixed date chunks, a pause
// between pages, exponential backoff on transient failures and a circuit
// breaker in front of the whole thing.
package ismr

import (
	"math"
	"sort"
	"time"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// TableName is the source name scintillation tables carry into joins.
const TableName = "ismr"

// Columns of the preprocessed per-epoch table, in order.
var Columns = []string{
	"n_sat",
	"n_sat_mild_scint",
	"n_sat_strong_scint",
	"s4_max",
	"s4_mean",
	"perc_mild_scint",
	"perc_strong_scint",
}

// Observation is one per-satellite S4 measurement.
type Observation struct {
	TimeUTC      time.Time `json:"time_utc"`
	SVID         int       `json:"svid"`
	Elevation    float64   `json:"elev"`
	S4           float64   `json:"s4"`
	S4Correction float64   `json:"s4_correction"`
}

// EpochAggregate summarises all satellites visible at one epoch.
type EpochAggregate struct {
	TimeUTC         time.Time
	NSat            int     // distinct satellites
	NSatMildScint   int     // observations at or above the mild threshold
	NSatStrongScint int     // observations at or above the strong threshold
	S4Max           float64 // max denoised S4
	S4Mean          float64 // mean denoised S4
	PercMildScint   float64
	PercStrongScint float64
}

// DenoiseS4 removes the receiver noise floor from a raw S4 value: the real
// part of sqrt(s4^2 - correction^2), rounded to three decimals. A correction
// larger than the raw value yields zero.
func DenoiseS4(s4, correction float64) float64 {
	d := s4*s4 - correction*correction
	if d <= 0 {
		return 0
	}
	return round3(math.Sqrt(d))
}

// FilterHighElevations keeps observations at or above the elevation
// threshold, discarding low-elevation satellites whose S4 is dominated by
// multipath.
func FilterHighElevations(obs []Observation, threshold float64) []Observation {
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.Elevation >= threshold {
			out = append(out, o)
		}
	}
	return out
}

// AggregateEpochs denoises S4 and reduces observations to one row per
// epoch. lower and upper are the mild and strong scintillation thresholds
// applied to the denoised S4.
func AggregateEpochs(obs []Observation, lower, upper float64) []EpochAggregate {
	type epochState struct {
		sats   map[int]struct{}
		s4     []float64
		mild   int
		strong int
	}
	epochs := make(map[time.Time]*epochState)

	for _, o := range obs {
		ts := o.TimeUTC.UTC()
		st, ok := epochs[ts]
		if !ok {
			st = &epochState{sats: make(map[int]struct{})}
			epochs[ts] = st
		}
		st.sats[o.SVID] = struct{}{}

		s4 := DenoiseS4(o.S4, o.S4Correction)
		st.s4 = append(st.s4, s4)
		if s4 >= lower {
			st.mild++
		}
		if s4 >= upper {
			st.strong++
		}
	}

	out := make([]EpochAggregate, 0, len(epochs))
	for ts, st := range epochs {
		agg := EpochAggregate{
			TimeUTC:         ts,
			NSat:            len(st.sats),
			NSatMildScint:   st.mild,
			NSatStrongScint: st.strong,
		}
		sum := 0.0
		for _, v := range st.s4 {
			if v > agg.S4Max {
				agg.S4Max = v
			}
			sum += v
		}
		agg.S4Mean = sum / float64(len(st.s4))
		agg.PercMildScint = round3(float64(st.mild) / float64(agg.NSat))
		agg.PercStrongScint = round3(float64(st.strong) / float64(agg.NSat))
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeUTC.Before(out[j].TimeUTC) })
	return out
}

// Preprocess runs the full S4 pipeline: denoise, elevation filter,
// per-epoch aggregation.
func Preprocess(obs []Observation, elevationThreshold, lower, upper float64) []EpochAggregate {
	return AggregateEpochs(FilterHighElevations(obs, elevationThreshold), lower, upper)
}

// Table converts per-epoch aggregates into a timestamp-indexed table.
func Table(aggs []EpochAggregate) (*timeseries.Table, error) {
	b := timeseries.NewBuilder(TableName, Columns...)
	for _, a := range aggs {
		if err := b.Append(a.TimeUTC,
			float64(a.NSat),
			float64(a.NSatMildScint),
			float64(a.NSatStrongScint),
			a.S4Max,
			a.S4Mean,
			a.PercMildScint,
			a.PercStrongScint,
		); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
