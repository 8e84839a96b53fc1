package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"fibermap/internal/application"
	"fibermap/internal/domain"
	"fibermap/internal/logging"
)

// FaultHandler обробляє HTTP-запити, пов'язані з обривами
type FaultHandler struct {
	faults *application.FaultService
	log    logging.Logger
}

// NewFaultHandler створює новий FaultHandler
func NewFaultHandler(faults *application.FaultService, log logging.Logger) *FaultHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &FaultHandler{
		faults: faults,
		log:    log,
	}
}

// RegisterRoutes реєструє маршрути для FaultHandler
func (h *FaultHandler) RegisterRoutes(r chi.Router) {
	r.Route("/faults", func(r chi.Router) {
		r.Get("/", h.ListFaults)
		r.Get("/active", h.ActiveFaults)
		r.Get("/{id}", h.GetFault)
		r.Put("/{id}/status", h.ChangeStatus)
	})
	r.Get("/readings/{id}", h.GetReading)
}

// ListFaults обробляє GET /faults?liaison_id=&status=DETECTED,IN_PROGRESS&bbox=
func (h *FaultHandler) ListFaults(w http.ResponseWriter, r *http.Request) {
	var filter domain.FaultFilter
	q := r.URL.Query()

	if raw := q.Get("liaison_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid liaison_id", http.StatusBadRequest)
			return
		}
		filter.LiaisonID = &id
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.FaultStatus(strings.TrimSpace(s))
			if !status.Valid() {
				http.Error(w, fmt.Sprintf("invalid status %q", s), http.StatusBadRequest)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	bounds, err := parseBBox(q.Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Bounds = bounds

	faults, err := h.faults.ListFaults(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeFaults(w, r, faults)
}

// ActiveFaults обробляє GET /faults/active?bbox=minLng,minLat,maxLng,maxLat&format=geojson
func (h *FaultHandler) ActiveFaults(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	faults, err := h.faults.ActiveFaults(r.Context(), bounds)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeFaults(w, r, faults)
}

// GetFault обробляє GET /faults/{id}
func (h *FaultHandler) GetFault(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	fault, err := h.faults.GetFault(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fault)
}

// ChangeStatus обробляє PUT /faults/{id}/status
func (h *FaultHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request faultStatusRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	fault, err := h.faults.ChangeFaultStatus(r.Context(), id, domain.FaultStatus(request.Status))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fault)
}

// GetReading обробляє GET /readings/{id}
func (h *FaultHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	reading, err := h.faults.GetReading(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// writeFaults віддає список як JSON або, з ?format=geojson, як FeatureCollection
// обривів, що мають координату
func (h *FaultHandler) writeFaults(w http.ResponseWriter, r *http.Request, faults []*domain.Fault) {
	if r.URL.Query().Get("format") != "geojson" {
		if faults == nil {
			faults = []*domain.Fault{}
		}
		writeJSON(w, http.StatusOK, faults)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range faults {
		if feat := application.FaultFeature(f); feat != nil {
			fc.Append(feat)
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

// parseBBox розбирає "minLng,minLat,maxLng,maxLat"; порожній рядок означає без обмежень
func parseBBox(raw string) (*domain.Bounds, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be minLng,minLat,maxLng,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox value %q", p)
		}
		v[i] = f
	}
	b := &domain.Bounds{MinLongitude: v[0], MinLatitude: v[1], MaxLongitude: v[2], MaxLatitude: v[3]}
	if b.MinLongitude > b.MaxLongitude || b.MinLatitude > b.MaxLatitude {
		return nil, fmt.Errorf("bbox minimum exceeds maximum")
	}
	if b.MinLatitude < -90 || b.MaxLatitude > 90 || b.MinLongitude < -180 || b.MaxLongitude > 180 {
		return nil, fmt.Errorf("bbox out of range")
	}
	return b, nil
}
