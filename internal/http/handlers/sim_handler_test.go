// README: Handler tests for simulation state, stepping, probability and trip listing.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"

	"ridesim/internal/http/handlers"
	"ridesim/internal/infra"
	"ridesim/internal/modules/trip"
	"ridesim/internal/service"
	"ridesim/internal/sim"
	"ridesim/internal/types"
)

func newRunner(t *testing.T, trips service.TripRecorder) *service.Runner {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := sim.New(sim.Options{
		Width:        12,
		Height:       12,
		Drivers:      3,
		POILocations: []types.Cell{{X: 1, Y: 1}, {X: 10, Y: 10}, {X: 1, Y: 10}},
		RequestProb:  0.7,
		Seed:         8,
		Logger:       logger,
		RunID:        "handler-run",
	})
	if err != nil {
		t.Fatal(err)
	}
	return service.NewRunner(s, service.RunnerOptions{Trips: trips, Logger: logger})
}

func buildTestRouter(runner handlers.SimRunner, trips *trip.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewSimHandler(runner)
	th := handlers.NewTripHandler(trips, runner.RunID())
	r.GET("/api/sim/state", h.State)
	r.GET("/api/sim/stats", h.Stats)
	r.POST("/api/sim/step", h.Step)
	r.PUT("/api/sim/request-prob", h.SetRequestProb)
	r.GET("/api/sim/trips", th.List)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestState(t *testing.T) {
	r := buildTestRouter(newRunner(t, nil), trip.NewService(nil))
	w := doRequest(r, http.MethodGet, "/api/sim/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap sim.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Width != 12 || snap.RunID != "handler-run" || len(snap.Drivers()) != 3 || len(snap.POIs) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStep(t *testing.T) {
	runner := newRunner(t, nil)
	r := buildTestRouter(runner, trip.NewService(nil))

	cases := []struct {
		name string
		path string
		want int
		tick int
	}{
		{"default one tick", "/api/sim/step", http.StatusOK, 1},
		{"explicit n", "/api/sim/step?n=9", http.StatusOK, 10},
		{"zero", "/api/sim/step?n=0", http.StatusBadRequest, 10},
		{"too many", "/api/sim/step?n=10001", http.StatusBadRequest, 10},
		{"not a number", "/api/sim/step?n=abc", http.StatusBadRequest, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, tc.path, nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
			if got := runner.Snapshot().Tick; got != tc.tick {
				t.Fatalf("expected tick %d, got %d", tc.tick, got)
			}
		})
	}
}

func TestStats(t *testing.T) {
	runner := newRunner(t, nil)
	if _, err := runner.Step(context.Background(), 50); err != nil {
		t.Fatal(err)
	}
	r := buildTestRouter(runner, trip.NewService(nil))

	w := doRequest(r, http.MethodGet, "/api/sim/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := runner.Stats()
	if body["tick"].(float64) != 50 || int(body["completed_trips"].(float64)) != want.CompletedTrips {
		t.Fatalf("unexpected stats body %v", body)
	}
	if body["avg_wait_time"].(float64) != want.AvgWaitTime() {
		t.Fatalf("avg mismatch: %v vs %v", body["avg_wait_time"], want.AvgWaitTime())
	}
}

func TestSetRequestProb(t *testing.T) {
	runner := newRunner(t, nil)
	r := buildTestRouter(runner, trip.NewService(nil))

	cases := []struct {
		name string
		body any
		want int
	}{
		{"valid", map[string]any{"prob": 0.25}, http.StatusOK},
		{"zero is valid", map[string]any{"prob": 0}, http.StatusOK},
		{"out of range", map[string]any{"prob": 1.5}, http.StatusBadRequest},
		{"missing field", map[string]any{}, http.StatusBadRequest},
		{"wrong type", map[string]any{"prob": "high"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPut, "/api/sim/request-prob", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
		})
	}
	if got := runner.Snapshot().RequestProb; got != 0 {
		t.Fatalf("expected last valid prob 0, got %v", got)
	}
}

func TestTrips_NoStore(t *testing.T) {
	r := buildTestRouter(newRunner(t, nil), trip.NewService(nil))
	w := doRequest(r, http.MethodGet, "/api/sim/trips", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTrips_WithStore(t *testing.T) {
	db, err := infra.NewSQLite(filepath.Join(t.TempDir(), "trips.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := trip.NewSQLiteStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	trips := trip.NewService(store)
	runner := newRunner(t, trips)
	if _, err := runner.Step(context.Background(), 300); err != nil {
		t.Fatal(err)
	}
	r := buildTestRouter(runner, trips)

	w := doRequest(r, http.MethodGet, "/api/sim/trips?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		Summary trip.Summary  `json:"summary"`
		Trips   []trip.Record `json:"trips"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	completed := runner.Stats().CompletedTrips
	if body.Summary.Trips != completed {
		t.Fatalf("expected %d stored trips, got %d", completed, body.Summary.Trips)
	}
	if wantLen := min(completed, 5); len(body.Trips) != wantLen {
		t.Fatalf("expected %d trips listed, got %d", wantLen, len(body.Trips))
	}

	if w := doRequest(r, http.MethodGet, "/api/sim/trips?limit=0", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/sim/trips?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=x, got %d", w.Code)
	}
}
