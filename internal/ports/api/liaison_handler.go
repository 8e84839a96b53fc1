package api

import (
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fibermap/internal/application"
	"fibermap/internal/logging"
	"fibermap/internal/ports"
)

// LiaisonHandler обробляє HTTP-запити топології лінії та її вимірювань
type LiaisonHandler struct {
	topology *application.TopologyService
	faults   *application.FaultService
	archive  ports.IncidentArchive
	log      logging.Logger
}

// NewLiaisonHandler створює новий LiaisonHandler. archive може бути nil.
func NewLiaisonHandler(topology *application.TopologyService, faults *application.FaultService, archive ports.IncidentArchive, log logging.Logger) *LiaisonHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &LiaisonHandler{
		topology: topology,
		faults:   faults,
		archive:  archive,
		log:      log,
	}
}

// RegisterRoutes реєструє маршрути для LiaisonHandler
func (h *LiaisonHandler) RegisterRoutes(r chi.Router) {
	r.Route("/liaisons", func(r chi.Router) {
		r.Get("/", h.ListLiaisons)
		r.Post("/", h.CreateLiaison)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTopology)
			r.Get("/trace", h.GetTrace)
			r.Post("/points", h.InsertPoint)
			r.Post("/segments", h.CreateSegment)
			r.Post("/recompute", h.RecomputeDistances)
			r.Post("/readings", h.CreateReading)
			r.Get("/readings", h.ListReadings)
			r.Post("/simulate", h.SimulateLocalization)
			if h.archive != nil {
				r.Get("/incidents", h.ListIncidents)
			}
		})
	})
	if h.archive != nil {
		r.Get("/incidents/*", h.GetIncident)
	}
}

// ListLiaisons обробляє GET /liaisons
func (h *LiaisonHandler) ListLiaisons(w http.ResponseWriter, r *http.Request) {
	filters := make(map[string]interface{})
	if status := r.URL.Query().Get("status"); status != "" {
		filters["status"] = status
	}
	if name := r.URL.Query().Get("name"); name != "" {
		filters["name"] = name
	}

	liaisons, err := h.topology.ListLiaisons(r.Context(), filters)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, liaisons)
}

// CreateLiaison обробляє POST /liaisons
func (h *LiaisonHandler) CreateLiaison(w http.ResponseWriter, r *http.Request) {
	var request createLiaisonRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	topology, err := h.topology.CreateLiaison(r.Context(), request.toInput())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, topology)
}

// GetTopology обробляє GET /liaisons/{id}
func (h *LiaisonHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	topology, err := h.topology.GetTopology(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, topology)
}

// GetTrace обробляє GET /liaisons/{id}/trace
func (h *LiaisonHandler) GetTrace(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	fc, err := h.topology.Trace(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

// InsertPoint обробляє POST /liaisons/{id}/points
func (h *LiaisonHandler) InsertPoint(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request insertPointRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	position := math.MaxInt32
	if request.Position != nil {
		position = *request.Position
	}
	point, err := h.topology.InsertPoint(r.Context(), id, request.toInput(), position)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, point)
}

// CreateSegment обробляє POST /liaisons/{id}/segments
func (h *LiaisonHandler) CreateSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request createSegmentRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	segment, err := h.topology.CreateSegment(r.Context(), id, request.toInput())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, segment)
}

// RecomputeDistances обробляє POST /liaisons/{id}/recompute
func (h *LiaisonHandler) RecomputeDistances(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	topology, err := h.topology.RecomputeCumulativeDistances(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, topology)
}

// CreateReading обробляє POST /liaisons/{id}/readings: зберігає вимірювання і створює обрив
func (h *LiaisonHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request readingRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	outcome, err := h.faults.CreateFaultReading(r.Context(), request.toInput(id))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// ListReadings обробляє GET /liaisons/{id}/readings
func (h *LiaisonHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	readings, err := h.faults.ListReadings(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// SimulateLocalization обробляє POST /liaisons/{id}/simulate, нічого не зберігаючи
func (h *LiaisonHandler) SimulateLocalization(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request readingRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	result, err := h.faults.SimulateLocalization(r.Context(), request.toInput(id))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListIncidents обробляє GET /liaisons/{id}/incidents
func (h *LiaisonHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	keys, err := h.archive.ListReportKeys(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// GetIncident обробляє GET /incidents/{key}
func (h *LiaisonHandler) GetIncident(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		http.Error(w, "missing report key", http.StatusBadRequest)
		return
	}

	report, err := h.archive.GetReport(r.Context(), key)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer report.Close()

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, report); err != nil {
		h.log.Warn(r.Context(), "incident report stream interrupted",
			logging.String("key", key), logging.Err(err))
	}
}
