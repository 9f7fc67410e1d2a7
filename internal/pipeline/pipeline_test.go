package pipeline

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/viventriglia/scintill-ai/internal/config"
	"github.com/viventriglia/scintill-ai/internal/gfz"
	"github.com/viventriglia/scintill-ai/internal/ismr"
)

const magFixture = ` Format                 IAGA-2002                                    |
 IAGA CODE              VSS                                          |
DATE       TIME         DOY     VSSX      VSSY      VSSZ      VSSF   |
2022-01-15 12:00:00.000 015     18311.60   -5190.20 -14525.00  23941.77
2022-01-15 12:01:00.000 015     18312.10   -5190.40 -14524.80  23942.21
2022-01-15 12:02:00.000 015     18312.60   -5190.60 -14524.60  23942.65
`

// Year, day-of-year, hour, minute, then the five solar-wind variables.
// 12:00 is deliberately absent so the join drops that epoch.
const omniFixture = `2022  15 12  1   5.12  412.3   3.45  1.23  2.10
2022  15 12  2   5.20  415.0   3.50  1.25  2.15
2022  15 12  3   5.30  410.0   3.40  1.20  2.05
`

const gfzFixture = `# header
2022 01 15 15355.5 59594.5 2578 20 3.000 2.667 2.000 1.667 1.333 2.000 2.333 3.333 15 12 7 6 5 7 9 18 10 55 109.8 108.0 0
`

type fakeFetcher struct {
	obs []ismr.Observation
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, from, to time.Time, fields []string) ([]ismr.Observation, error) {
	return f.obs, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixtures(t *testing.T, withGFZ bool) *config.Config {
	t.Helper()
	dir := t.TempDir()

	magDir := filepath.Join(dir, "intermagnet", "VSS", "2022")
	if err := os.MkdirAll(magDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(magDir, "vss20220115dmin.min"), []byte(magFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	omniDir := filepath.Join(dir, "omni")
	if err := os.MkdirAll(omniDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(omniDir, "omni_min_2022.lst"), []byte(omniFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	if withGFZ {
		gfzDir := filepath.Join(dir, "gfz")
		if err := os.MkdirAll(gfzDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(gfzDir, gfz.FileName), []byte(gfzFixture), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return &config.Config{
		DataDir:      dir,
		Magnetometer: "VSS",
		Station: config.Station{
			Name:      "PRU2",
			Latitude:  config.DefaultLatitude,
			Longitude: config.DefaultLongitude,
			Altitude:  config.DefaultAltitude,
		},
		ElevationThreshold: config.DefaultElevationThreshold,
		LowerS4Threshold:   config.DefaultLowerS4Threshold,
		UpperS4Threshold:   config.DefaultUpperS4Threshold,
	}
}

var (
	from = time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2022, 1, 16, 0, 0, 0, 0, time.UTC)
)

func TestBuildWithoutTarget(t *testing.T) {
	cfg := writeFixtures(t, true)
	ds, err := New(cfg, testLogger(), nil).Build(context.Background(), from, to)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Only the two overlapping epochs survive the join.
	if ds.Table.Len() != 2 {
		t.Fatalf("rows: got %d, want 2", ds.Table.Len())
	}
	want := time.Date(2022, 1, 15, 12, 1, 0, 0, time.UTC)
	if !ds.Table.Time(0).Equal(want) {
		t.Errorf("first epoch: got %v, want %v", ds.Table.Time(0), want)
	}

	for _, col := range []string{"x", "y", "z", "h", "flow_speed", "zenith", "kp_mean", "f107_obs"} {
		if _, ok := ds.Table.Column(col); !ok {
			t.Errorf("missing column %q (have %v)", col, ds.Table.Columns())
		}
	}
	if _, ok := ds.Table.Column("s4_max"); ok {
		t.Error("scintillation column present without a fetcher")
	}

	// Daily indices broadcast onto every row of the day.
	v, _ := ds.Table.Value(0, "ap")
	if v != 10 {
		t.Errorf("ap: got %v, want 10", v)
	}
	kp, _ := ds.Table.Value(1, "kp_mean")
	wantKp := (3.000 + 2.667 + 2.000 + 1.667 + 1.333 + 2.000 + 2.333 + 3.333) / 8
	if math.Abs(kp-wantKp) > 1e-9 {
		t.Errorf("kp_mean: got %v, want %v", kp, wantKp)
	}

	// Midday at the station: the sun is high, zenith well under 90.
	z, _ := ds.Table.Value(0, "zenith")
	if z <= 0 || z >= 90 {
		t.Errorf("zenith: got %v, want daytime value", z)
	}
}

func TestBuildWithTarget(t *testing.T) {
	cfg := writeFixtures(t, true)
	e1 := time.Date(2022, 1, 15, 12, 1, 0, 0, time.UTC)
	fetcher := &fakeFetcher{obs: []ismr.Observation{
		{TimeUTC: e1, SVID: 1, Elevation: 80, S4: 0.5, S4Correction: 0.3},
		{TimeUTC: e1, SVID: 2, Elevation: 75, S4: 0.9, S4Correction: 0.1},
		{TimeUTC: e1, SVID: 3, Elevation: 40, S4: 0.9, S4Correction: 0.1}, // below elevation cut
	}}

	ds, err := New(cfg, testLogger(), fetcher).Build(context.Background(), from, to)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// The target exists only at 12:01, so the dataset narrows to that epoch.
	if ds.Table.Len() != 1 {
		t.Fatalf("rows: got %d, want 1", ds.Table.Len())
	}
	if n, _ := ds.Table.Value(0, "n_sat"); n != 2 {
		t.Errorf("n_sat: got %v, want 2", n)
	}
	if v, _ := ds.Table.Value(0, "n_sat_strong_scint"); v != 1 {
		t.Errorf("n_sat_strong_scint: got %v, want 1", v)
	}

	found := false
	for _, s := range ds.Sources {
		if s == ismr.TableName {
			found = true
		}
	}
	if !found {
		t.Errorf("sources missing %q: %v", ismr.TableName, ds.Sources)
	}
}

func TestBuildMissingDailyIndicesIsNotFatal(t *testing.T) {
	cfg := writeFixtures(t, false)
	ds, err := New(cfg, testLogger(), nil).Build(context.Background(), from, to)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := ds.Table.Column("kp_mean"); ok {
		t.Error("daily index column present without the local file")
	}
	for _, s := range ds.Sources {
		if s == gfz.TableName {
			t.Errorf("sources should not list %q: %v", gfz.TableName, ds.Sources)
		}
	}
	if ds.Table.Len() != 2 {
		t.Errorf("rows: got %d, want 2", ds.Table.Len())
	}
}

var _ ObservationFetcher = (*ismr.Client)(nil)
