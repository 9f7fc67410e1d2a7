package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/viventriglia/scintill-ai/internal/config"
	"github.com/viventriglia/scintill-ai/internal/pipeline"
	"github.com/viventriglia/scintill-ai/internal/solarpos"
	"github.com/viventriglia/scintill-ai/internal/store"
	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

func testSite() solarpos.Site {
	return solarpos.Site{
		Latitude:  config.DefaultLatitude,
		Longitude: config.DefaultLongitude,
		Altitude:  config.DefaultAltitude,
	}
}

func testApp(t *testing.T, ds *pipeline.Dataset) *fiber.App {
	t.Helper()
	app := fiber.New()
	st := store.NewMemoryStore(10, 0)
	if ds != nil {
		st.Save(ds)
	}
	RegisterRoutes(app, st, testSite())
	return app
}

func testDataset(t *testing.T) *pipeline.Dataset {
	t.Helper()
	b := timeseries.NewBuilder("features", "x", "flow_speed")
	base := time.Date(2022, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		v := 18311.6 + float64(i)
		if err := b.Append(base.Add(time.Duration(i)*time.Minute), v, 412.3); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Append(base.Add(3*time.Minute), timeseries.Missing(), 410.0); err != nil {
		t.Fatal(err)
	}
	tbl, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return &pipeline.Dataset{Table: tbl, BuiltAt: base.Add(time.Hour), Sources: []string{"mag", "omni"}}
}

func getJSON(t *testing.T, app *fiber.App, url string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s: status %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}
	if wantStatus != http.StatusOK {
		return nil
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	app := testApp(t, testDataset(t))
	out := getJSON(t, app, "/health", http.StatusOK)
	if out["status"] != "ok" {
		t.Errorf("status: got %v", out["status"])
	}
	if out["builds"].(float64) != 1 {
		t.Errorf("builds: got %v", out["builds"])
	}
}

func TestLatestDataset(t *testing.T) {
	app := testApp(t, testDataset(t))
	out := getJSON(t, app, "/api/v1/dataset/latest", http.StatusOK)

	rows := out["rows"].([]any)
	if len(rows) != 4 {
		t.Fatalf("rows: got %d, want 4", len(rows))
	}
	first := rows[0].(map[string]any)
	if first["x"].(float64) != 18311.6 {
		t.Errorf("x: got %v", first["x"])
	}

	// Missing values are serialized as null, never NaN.
	last := rows[3].(map[string]any)
	if v, ok := last["x"]; !ok || v != nil {
		t.Errorf("missing x: got %v", v)
	}
	if last["flow_speed"].(float64) != 410.0 {
		t.Errorf("flow_speed: got %v", last["flow_speed"])
	}
}

func TestLatestDatasetEmptyStore(t *testing.T) {
	app := testApp(t, nil)
	getJSON(t, app, "/api/v1/dataset/latest", http.StatusNotFound)
}

func TestRangeDataset(t *testing.T) {
	app := testApp(t, testDataset(t))

	out := getJSON(t, app,
		"/api/v1/dataset/range?from=2022-01-15T12:01:00Z&to=2022-01-15T12:02:00Z",
		http.StatusOK)
	rows := out["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}

	// Missing parameters and inverted ranges are client errors.
	getJSON(t, app, "/api/v1/dataset/range?from=2022-01-15T12:01:00Z", http.StatusBadRequest)
	getJSON(t, app,
		"/api/v1/dataset/range?from=2022-01-15T12:02:00Z&to=2022-01-15T12:01:00Z",
		http.StatusBadRequest)

	// A window with no rows is a 404, not an empty payload.
	getJSON(t, app,
		"/api/v1/dataset/range?from=2023-01-01T00:00:00Z&to=2023-01-02T00:00:00Z",
		http.StatusNotFound)
}

func TestSolarPosition(t *testing.T) {
	app := testApp(t, nil)

	out := getJSON(t, app, "/api/v1/solar-position?at=2022-01-15T15:00:00Z", http.StatusOK)
	pos := out["position"].(map[string]any)
	zen := pos["zenith"].(float64)
	if zen < 8.2 || zen > 8.3 {
		t.Errorf("zenith: got %v, want about 8.22", zen)
	}

	getJSON(t, app, "/api/v1/solar-position?at=yesterday", http.StatusBadRequest)
}
