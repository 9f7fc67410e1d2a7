// Package solarpos computes solar-position features (zenith, elevation,
// azimuth, equation of time) for timestamps at a fixed observation site.
//
// The implementation follows the NOAA solar calculator equations (Meeus,
// Astronomical Algorithms), accurate to roughly 0.01 degrees over the
// 1900-2100 range, which is far below the tolerance any scintillation
// feature needs. Atmospheric refraction for the apparent angles is scaled
// by the standard-atmosphere pressure at the site altitude; above the
// atmosphere (e.g. at ionospheric shell height) the correction vanishes
// and apparent equals geometric.
package solarpos

import (
	"math"
	"time"

	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// TableName is the source name solar-feature tables carry into joins.
const TableName = "sun"

// Position holds the solar-position features for one timestamp.
type Position struct {
	Zenith            float64 `json:"zenith"`             // degrees from vertical
	ApparentZenith    float64 `json:"apparent_zenith"`    // refraction-corrected
	Elevation         float64 `json:"elevation"`          // degrees above horizon
	ApparentElevation float64 `json:"apparent_elevation"` // refraction-corrected
	Azimuth           float64 `json:"azimuth"`            // degrees east of north
	EquationOfTime    float64 `json:"equation_of_time"`   // minutes
}

// Columns names the features in the order Table emits them.
var Columns = []string{"zenith", "apparent_zenith", "elevation", "apparent_elevation", "azimuth", "equation_of_time"}

// Site is an observation site.
type Site struct {
	Latitude  float64 // decimal degrees, positive north
	Longitude float64 // decimal degrees, positive east
	Altitude  float64 // metres
}

// At computes the solar position for one timestamp.
func (s Site) At(t time.Time) Position {
	jd := float64(t.UnixMilli())/86400000.0 + 2440587.5
	T := (jd - 2451545.0) / 36525.0

	// Geometric mean longitude and anomaly of the sun.
	l0 := math.Mod(280.46646+T*(36000.76983+T*0.0003032), 360)
	m := 357.52911 + T*(35999.05029-0.0001537*T)
	ecc := 0.016708634 - T*(0.000042037+0.0000001267*T)

	c := sinDeg(m)*(1.914602-T*(0.004817+0.000014*T)) +
		sinDeg(2*m)*(0.019993-0.000101*T) +
		sinDeg(3*m)*0.000289
	trueLong := l0 + c

	// Apparent longitude, corrected for nutation and aberration.
	omega := 125.04 - 1934.136*T
	lambda := trueLong - 0.00569 - 0.00478*sinDeg(omega)

	// Obliquity of the ecliptic.
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	eps := eps0 + 0.00256*cosDeg(omega)

	decl := degrees(math.Asin(sinDeg(eps) * sinDeg(lambda)))

	// Equation of time, minutes.
	y := math.Pow(math.Tan(radians(eps/2)), 2)
	eqTime := 4 * degrees(y*sinDeg(2*l0)-
		2*ecc*sinDeg(m)+
		4*ecc*y*sinDeg(m)*cosDeg(2*l0)-
		0.5*y*y*sinDeg(4*l0)-
		1.25*ecc*ecc*sinDeg(2*m))

	// True solar time and hour angle.
	ut := t.UTC()
	minutes := float64(ut.Hour())*60 + float64(ut.Minute()) + float64(ut.Second())/60 + float64(ut.Nanosecond())/6e10
	tst := math.Mod(minutes+eqTime+4*s.Longitude+1440, 1440)
	ha := tst/4 - 180

	cosZen := sinDeg(s.Latitude)*sinDeg(decl) + cosDeg(s.Latitude)*cosDeg(decl)*cosDeg(ha)
	cosZen = clamp(cosZen, -1, 1)
	zenith := degrees(math.Acos(cosZen))
	elevation := 90 - zenith

	azimuth := 0.0
	if denom := cosDeg(s.Latitude) * sinDeg(zenith); math.Abs(denom) > 1e-12 {
		cosAz := clamp((sinDeg(s.Latitude)*cosDeg(zenith)-sinDeg(decl))/denom, -1, 1)
		azimuth = 180 - degrees(math.Acos(cosAz))
		if ha > 0 {
			azimuth = -azimuth
		}
		azimuth = math.Mod(azimuth+360, 360)
	}

	refr := refractionDeg(elevation) * pressureAt(s.Altitude) / 101325.0

	return Position{
		Zenith:            zenith,
		ApparentZenith:    zenith - refr,
		Elevation:         elevation,
		ApparentElevation: elevation + refr,
		Azimuth:           azimuth,
		EquationOfTime:    eqTime,
	}
}

// Series computes the position for each timestamp.
func (s Site) Series(times []time.Time) []Position {
	out := make([]Position, len(times))
	for i, t := range times {
		out[i] = s.At(t)
	}
	return out
}

// Table computes solar features for the given timestamps as a Table with
// the selected columns (all of Columns when none are named).
func (s Site) Table(times []time.Time, columns ...string) (*timeseries.Table, error) {
	if len(columns) == 0 {
		columns = []string{"zenith"}
	}
	b := timeseries.NewBuilder(TableName, columns...)
	for _, t := range times {
		p := s.At(t)
		values := make([]float64, len(columns))
		for i, col := range columns {
			values[i] = p.feature(col)
		}
		if err := b.Append(t, values...); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func (p Position) feature(name string) float64 {
	switch name {
	case "zenith":
		return p.Zenith
	case "apparent_zenith":
		return p.ApparentZenith
	case "elevation":
		return p.Elevation
	case "apparent_elevation":
		return p.ApparentElevation
	case "azimuth":
		return p.Azimuth
	case "equation_of_time":
		return p.EquationOfTime
	}
	return timeseries.Missing()
}

// refractionDeg is the NOAA piecewise refraction correction at standard
// pressure, in degrees, for a geometric elevation in degrees.
func refractionDeg(elevation float64) float64 {
	var refr float64 // arcseconds
	switch {
	case elevation > 85:
		return 0
	case elevation > 5:
		te := math.Tan(radians(elevation))
		refr = 58.1/te - 0.07/(te*te*te) + 0.000086/math.Pow(te, 5)
	case elevation > -0.575:
		refr = 1735 + elevation*(-518.2+elevation*(103.4+elevation*(-12.79+elevation*0.711)))
	default:
		refr = -20.772 / math.Tan(radians(elevation))
	}
	return refr / 3600
}

// pressureAt converts altitude to standard-atmosphere pressure in pascals,
// clamping to zero above the atmosphere.
func pressureAt(altitude float64) float64 {
	if altitude >= 44331.514 {
		return 0
	}
	return 100 * math.Pow((44331.514-altitude)/11880.516, 1/0.1902632)
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
func sinDeg(d float64) float64  { return math.Sin(radians(d)) }
func cosDeg(d float64) float64  { return math.Cos(radians(d)) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
