// Package pipeline assembles the merged feature dataset: magnetometer and
// solar-wind series joined on exact timestamps, augmented with solar
// geometry, daily geomagnetic context and the scintillation target.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/viventriglia/scintill-ai/internal/config"
	"github.com/viventriglia/scintill-ai/internal/gfz"
	"github.com/viventriglia/scintill-ai/internal/iaga"
	"github.com/viventriglia/scintill-ai/internal/ismr"
	"github.com/viventriglia/scintill-ai/internal/omniweb"
	"github.com/viventriglia/scintill-ai/internal/solarpos"
	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// ObservationFetcher retrieves raw per-satellite scintillation observations.
// *ismr.Client satisfies it; tests substitute a local fake.
type ObservationFetcher interface {
	Fetch(ctx context.Context, from, to time.Time, fields []string) ([]ismr.Observation, error)
}

// Dataset is one build of the merged feature table.
type Dataset struct {
	Table   *timeseries.Table
	BuiltAt time.Time
	Sources []string
}

// Builder wires the per-source loaders into one dataset build.
type Builder struct {
	cfg     *config.Config
	log     *slog.Logger
	fetcher ObservationFetcher
}

// New returns a Builder. fetcher may be nil, in which case the dataset is
// built without the scintillation target.
func New(cfg *config.Config, log *slog.Logger, fetcher ObservationFetcher) *Builder {
	return &Builder{cfg: cfg, log: log, fetcher: fetcher}
}

// Build loads every source for [from, to], joins them on exact timestamps
// and attaches the derived features.
func (b *Builder) Build(ctx context.Context, from, to time.Time) (*Dataset, error) {
	mag, err := iaga.LoadStation(b.cfg.MagnetometerDir())
	if err != nil {
		return nil, fmt.Errorf("load magnetometer: %w", err)
	}
	mag = mag.Slice(from, to)
	b.log.Info("loaded magnetometer series", "station", b.cfg.Magnetometer, "rows", mag.Len())

	omni, err := omniweb.LoadDir(b.cfg.OMNIDir(), omniweb.DefaultVariables)
	if err != nil {
		return nil, fmt.Errorf("load solar wind: %w", err)
	}
	omni = omni.Slice(from, to)
	b.log.Info("loaded solar-wind series", "rows", omni.Len())

	merged, err := mag.InnerJoin(omni)
	if err != nil {
		return nil, fmt.Errorf("join magnetometer and solar wind: %w", err)
	}
	sources := []string{iaga.TableName, omniweb.TableName}

	if b.fetcher != nil {
		merged, err = b.attachScintillation(ctx, merged, from, to)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ismr.TableName)
	} else {
		b.log.Warn("no ISMR credential configured, building dataset without scintillation target")
	}

	merged, err = b.attachSolarPosition(merged)
	if err != nil {
		return nil, err
	}
	sources = append(sources, solarpos.TableName)

	merged, ok, err := b.attachDailyIndices(merged, from, to)
	if err != nil {
		return nil, err
	}
	if ok {
		sources = append(sources, gfz.TableName)
	}

	b.log.Info("dataset built", "rows", merged.Len(), "columns", len(merged.Columns()))
	return &Dataset{Table: merged, BuiltAt: time.Now().UTC(), Sources: sources}, nil
}

// attachScintillation fetches raw observations, reduces them to per-epoch
// aggregates and inner-joins the result, keeping only epochs present in
// every source.
func (b *Builder) attachScintillation(ctx context.Context, merged *timeseries.Table, from, to time.Time) (*timeseries.Table, error) {
	obs, err := b.fetcher.Fetch(ctx, from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch scintillation observations: %w", err)
	}
	aggs := ismr.Preprocess(obs, b.cfg.ElevationThreshold, b.cfg.LowerS4Threshold, b.cfg.UpperS4Threshold)
	tbl, err := ismr.Table(aggs)
	if err != nil {
		return nil, fmt.Errorf("build scintillation table: %w", err)
	}
	b.log.Info("preprocessed scintillation observations", "observations", len(obs), "epochs", tbl.Len())

	joined, err := merged.InnerJoin(tbl)
	if err != nil {
		return nil, fmt.Errorf("join scintillation target: %w", err)
	}
	return joined, nil
}

// attachSolarPosition computes the solar zenith angle at the ionospheric
// shell above the station for every timestamp already in the dataset. The
// join is total: both sides share the exact same epochs.
func (b *Builder) attachSolarPosition(merged *timeseries.Table) (*timeseries.Table, error) {
	site := solarpos.Site{
		Latitude:  b.cfg.Station.Latitude,
		Longitude: b.cfg.Station.Longitude,
		Altitude:  b.cfg.Station.Altitude,
	}
	sun, err := site.Table(merged.Times(), "zenith")
	if err != nil {
		return nil, fmt.Errorf("compute solar position: %w", err)
	}
	joined, err := merged.InnerJoin(sun)
	if err != nil {
		return nil, fmt.Errorf("join solar position: %w", err)
	}
	return joined, nil
}

// attachDailyIndices looks up each epoch's calendar day in the GFZ daily
// dataset and carries the day's indices onto the row. Days have coarser
// cadence than the minute series, so this is a broadcast, not a timestamp
// join. A missing local file is not fatal.
func (b *Builder) attachDailyIndices(merged *timeseries.Table, from, to time.Time) (*timeseries.Table, bool, error) {
	path := filepath.Join(b.cfg.GFZDir(), gfz.FileName)
	days, err := gfz.ParseFile(path, from, to)
	if os.IsNotExist(err) {
		b.log.Warn("daily index file not found, skipping", "path", path)
		return merged, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load daily indices: %w", err)
	}

	byDate := gfz.ByDate(days)
	bld := timeseries.NewBuilder(gfz.TableName, gfz.Columns...)
	for _, ts := range merged.Times() {
		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		d, ok := byDate[date]
		if !ok {
			miss := timeseries.Missing()
			if err := bld.Append(ts, miss, miss, miss, miss, miss); err != nil {
				return nil, false, err
			}
			continue
		}
		if err := bld.Append(ts, d.KpMean(), d.Ap, d.SSN, d.F107o, d.F107a); err != nil {
			return nil, false, err
		}
	}
	daily, err := bld.Finish()
	if err != nil {
		return nil, false, err
	}
	joined, err := merged.InnerJoin(daily)
	if err != nil {
		return nil, false, fmt.Errorf("join daily indices: %w", err)
	}
	return joined, true, nil
}
