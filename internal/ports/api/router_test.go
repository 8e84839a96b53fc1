package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/internal/application"
	"fibermap/internal/domain"
	"fibermap/internal/infrastructure/memory"
	"fibermap/internal/ports"
	"fibermap/pkg/localization"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ports.FaultEvent) {}

type memoryArchive struct {
	mu      sync.Mutex
	reports map[string]string
}

func (a *memoryArchive) Name() string { return "memory_archive" }

func (a *memoryArchive) Deliver(_ context.Context, e ports.FaultEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[e.Liaison.ID.String()+"/"+e.Fault.ID.String()+".json"] = string(e.Type)
	return nil
}

func (a *memoryArchive) GetReport(_ context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.reports[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(`{"type":"` + body + `"}`)), nil
}

func (a *memoryArchive) ListReportKeys(_ context.Context, liaisonID uuid.UUID) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var keys []string
	for k := range a.reports {
		if strings.HasPrefix(k, liaisonID.String()+"/") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type testAPI struct {
	srv     *httptest.Server
	archive *memoryArchive
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	archive := &memoryArchive{reports: map[string]string{}}
	topology := application.NewTopologyService(store, store, 1.2, nil, nil)
	faults := application.NewFaultService(store, store, store.Readings(), store.Faults(),
		localization.NewEngine(localization.DefaultThresholds()), nopNotifier{}, nil, nil)

	router := NewRouter(RouterDeps{
		Topology:   topology,
		Faults:     faults,
		Navigation: application.NewNavigationService(store, store.Faults()),
		Archive:    archive,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, archive: archive}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// createLiaison створює лінію голова (36.80,10.00) -> CH-1 -> абонент (36.80,10.04)
func (a *testAPI) createLiaison(t *testing.T) domain.Topology {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/liaisons", map[string]interface{}{
		"name":        "LS-MONASTIR-04",
		"head_end":    map[string]float64{"latitude": 36.80, "longitude": 10.00},
		"tail_end":    map[string]float64{"latitude": 36.80, "longitude": 10.04},
		"anchor_ends": true,
		"points": []map[string]interface{}{{
			"type":     "chamber",
			"name":     "CH-1",
			"location": map[string]float64{"latitude": 36.80, "longitude": 10.02},
		}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var topo domain.Topology
	require.NoError(t, json.Unmarshal(body, &topo))
	return topo
}

func TestLiaisonLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	base := "/api/v1/liaisons/" + topo.Liaison.ID.String()

	require.Len(t, topo.Points, 1)
	require.Len(t, topo.Segments, 2)

	status, body := api.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, status)
	var loaded domain.Topology
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, topo.Liaison.ID, loaded.Liaison.ID)

	status, body = api.do(t, http.MethodPost, base+"/points", map[string]interface{}{
		"type":     "splice",
		"name":     "SP-7",
		"location": map[string]float64{"latitude": 36.80, "longitude": 10.01},
		"position": 0,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var point domain.Point
	require.NoError(t, json.Unmarshal(body, &point))
	assert.Equal(t, 0, point.Ordre)

	status, _ = api.do(t, http.MethodPost, base+"/recompute", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodGet, base+"/trace", nil)
	require.Equal(t, http.StatusOK, status)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	// ламана, голова, 2 точки, абонент, 3 сегменти
	assert.Len(t, fc.Features, 8)

	status, body = api.do(t, http.MethodGet, "/api/v1/liaisons?name=LS-MONASTIR-04", nil)
	require.Equal(t, http.StatusOK, status)
	var list []domain.Liaison
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestCreateLiaisonValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed JSON", `{"name":`},
		{"missing name", map[string]interface{}{
			"head_end": map[string]float64{"latitude": 1, "longitude": 1},
			"tail_end": map[string]float64{"latitude": 1, "longitude": 2},
		}},
		{"latitude out of range", map[string]interface{}{
			"name":     "bad",
			"head_end": map[string]float64{"latitude": 91, "longitude": 1},
			"tail_end": map[string]float64{"latitude": 1, "longitude": 2},
		}},
		{"unknown point type", map[string]interface{}{
			"name":     "bad",
			"head_end": map[string]float64{"latitude": 1, "longitude": 1},
			"tail_end": map[string]float64{"latitude": 1, "longitude": 2},
			"points":   []map[string]interface{}{{"type": "manhole", "location": map[string]float64{"latitude": 1, "longitude": 1.5}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := api.do(t, http.MethodPost, "/api/v1/liaisons", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestSegmentErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	base := "/api/v1/liaisons/" + topo.Liaison.ID.String()
	pointID := topo.Points[0].ID.String()

	status, _ := api.do(t, http.MethodPost, base+"/segments", map[string]interface{}{"to_point_id": pointID})
	assert.Equal(t, http.StatusConflict, status, "head -> CH-1 already exists")

	status, _ = api.do(t, http.MethodPost, base+"/segments", map[string]interface{}{"to_point_id": uuid.New().String()})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPost, base+"/segments", map[string]interface{}{"from_point_id": pointID, "cable_distance_km": -1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/api/v1/liaisons/not-a-uuid/segments", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/liaisons/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFaultFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	base := "/api/v1/liaisons/" + topo.Liaison.ID.String()

	reading := map[string]interface{}{
		"raw_distance_km": 1.0,
		"probe_position":  "head_end",
		"scan_direction":  "toward_tail_end",
		"attenuation_db":  22.0,
	}

	status, body := api.do(t, http.MethodPost, base+"/simulate", reading)
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = api.do(t, http.MethodGet, "/api/v1/faults", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, body = api.do(t, http.MethodPost, base+"/readings", reading)
	require.Equal(t, http.StatusCreated, status, string(body))
	var outcome struct {
		Fault   domain.Fault   `json:"fault"`
		Reading domain.Reading `json:"reading"`
	}
	require.NoError(t, json.Unmarshal(body, &outcome))
	assert.Equal(t, domain.FaultStatusDetected, outcome.Fault.Status)
	require.NotNil(t, outcome.Fault.EstimatedLocation)
	faultPath := "/api/v1/faults/" + outcome.Fault.ID.String()

	status, _ = api.do(t, http.MethodGet, "/api/v1/readings/"+outcome.Reading.ID.String(), nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodGet, "/api/v1/faults/active?format=geojson&bbox=9.9,36.7,10.1,36.9", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), outcome.Fault.ID.String())

	status, _ = api.do(t, http.MethodGet, "/api/v1/faults/active?bbox=1,2,3", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/api/v1/navigation/faults/"+outcome.Fault.ID.String(), map[string]interface{}{
		"position": map[string]float64{"latitude": 36.79, "longitude": 10.00},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var guidance application.Guidance
	require.NoError(t, json.Unmarshal(body, &guidance))
	assert.Equal(t, "fault", guidance.TargetKind)

	status, _ = api.do(t, http.MethodPut, faultPath+"/status", map[string]string{"status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(t, http.MethodPut, faultPath+"/status", map[string]string{"status": "DETECTED"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = api.do(t, http.MethodPut, faultPath+"/status", map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodGet, "/api/v1/faults?status=IN_PROGRESS&liaison_id="+topo.Liaison.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	var faults []domain.Fault
	require.NoError(t, json.Unmarshal(body, &faults))
	assert.Len(t, faults, 1)
}

func TestReadingValidation(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	base := "/api/v1/liaisons/" + topo.Liaison.ID.String()

	status, _ := api.do(t, http.MethodPost, base+"/readings", map[string]interface{}{
		"raw_distance_km": 1.0,
		"probe_position":  "intermediate",
		"scan_direction":  "toward_tail_end",
	})
	assert.Equal(t, http.StatusBadRequest, status, "intermediate needs a reference point")

	status, _ = api.do(t, http.MethodPost, base+"/readings", map[string]interface{}{
		"probe_position": "head_end",
		"scan_direction": "toward_tail_end",
	})
	assert.Equal(t, http.StatusBadRequest, status, "distance is required")

	status, _ = api.do(t, http.MethodPost, "/api/v1/liaisons/"+uuid.New().String()+"/readings", map[string]interface{}{
		"raw_distance_km": 1.0,
		"probe_position":  "head_end",
		"scan_direction":  "toward_tail_end",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNavigationToPointOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	path := "/api/v1/navigation/liaisons/" + topo.Liaison.ID.String() + "/points/" + topo.Points[0].ID.String()

	status, body := api.do(t, http.MethodPost, path, map[string]interface{}{
		"position": map[string]float64{"latitude": 36.80, "longitude": 10.02},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var g application.Guidance
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, "You have arrived at CH-1", g.Instruction)

	status, _ = api.do(t, http.MethodPost, path, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIncidentArchiveRoutes(t *testing.T) {
	api := newTestAPI(t)
	topo := api.createLiaison(t)
	faultID := uuid.New()
	require.NoError(t, api.archive.Deliver(context.Background(), ports.FaultEvent{
		Type:    ports.FaultEventDetected,
		Fault:   domain.Fault{ID: faultID},
		Liaison: topo.Liaison,
	}))

	status, body := api.do(t, http.MethodGet, "/api/v1/liaisons/"+topo.Liaison.ID.String()+"/incidents", nil)
	require.Equal(t, http.StatusOK, status)
	var keys []string
	require.NoError(t, json.Unmarshal(body, &keys))
	require.Len(t, keys, 1)

	status, body = api.do(t, http.MethodGet, "/api/v1/incidents/"+keys[0], nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"type":"fault.detected"}`, string(body))

	status, _ = api.do(t, http.MethodGet, "/api/v1/incidents/"+uuid.New().String()+"/missing.json", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
