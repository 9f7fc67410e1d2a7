// Package httpapi exposes the built dataset and solar-geometry helpers over
// HTTP.
package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/viventriglia/scintill-ai/internal/pipeline"
	"github.com/viventriglia/scintill-ai/internal/solarpos"
	"github.com/viventriglia/scintill-ai/internal/store"
	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

var validate = validator.New()

// DatasetProvider hands out the most recent dataset build.
// *store.MemoryStore satisfies it.
type DatasetProvider interface {
	Latest() (*pipeline.Dataset, error)
	Len() int
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, datasets DatasetProvider, site solarpos.Site) {
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status": "ok",
			"builds": datasets.Len(),
		}
		if ds, err := datasets.Latest(); err == nil {
			status["latest_built_at"] = ds.BuiltAt
		}
		return c.JSON(status)
	})

	v1 := app.Group("/api/v1")

	v1.Get("/dataset/latest", func(c *fiber.Ctx) error {
		ds, err := datasets.Latest()
		if err != nil {
			if errors.Is(err, store.ErrEmpty) {
				return fiber.NewError(fiber.StatusNotFound, "no dataset built yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch dataset")
		}
		return c.JSON(datasetResponse(ds, ds.Table))
	})

	v1.Get("/dataset/range", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ds, err := datasets.Latest()
		if err != nil {
			if errors.Is(err, store.ErrEmpty) {
				return fiber.NewError(fiber.StatusNotFound, "no dataset built yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch dataset")
		}

		slice := ds.Table.Slice(req.From, req.To)
		if slice.Len() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no rows in requested range")
		}
		return c.JSON(datasetResponse(ds, slice))
	})

	v1.Get("/solar-position", func(c *fiber.Ctx) error {
		at := time.Now().UTC()
		if s := c.Query("at"); s != "" {
			ts, err := parseTime(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			at = ts
		}
		return c.JSON(fiber.Map{
			"time_utc":  at,
			"latitude":  site.Latitude,
			"longitude": site.Longitude,
			"altitude":  site.Altitude,
			"position":  site.At(at),
		})
	})
}

// datasetResponse renders a table as row objects. Missing values become
// JSON null rather than the NaN encoding/json rejects.
func datasetResponse(ds *pipeline.Dataset, tbl *timeseries.Table) fiber.Map {
	cols := tbl.Columns()
	rows := make([]fiber.Map, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := fiber.Map{"time_utc": tbl.Time(i).UTC()}
		for j, col := range cols {
			v := tbl.Row(i)[j]
			if timeseries.IsMissing(v) {
				row[col] = nil
			} else {
				row[col] = v
			}
		}
		rows[i] = row
	}
	return fiber.Map{
		"built_at": ds.BuiltAt,
		"sources":  ds.Sources,
		"columns":  cols,
		"rows":     rows,
	}
}

// rangeQuery holds query parameters for the range endpoint.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	r.From = from
	r.To = to
	return nil
}

// parseTime accepts RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
