package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fibermap/internal/application"
	"fibermap/internal/logging"
)

// NavigationHandler веде техніка до точки або обриву від його GPS позиції
type NavigationHandler struct {
	nav *application.NavigationService
	log logging.Logger
}

// NewNavigationHandler створює новий NavigationHandler
func NewNavigationHandler(nav *application.NavigationService, log logging.Logger) *NavigationHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &NavigationHandler{nav: nav, log: log}
}

// RegisterRoutes реєструє маршрути для NavigationHandler
func (h *NavigationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/navigation", func(r chi.Router) {
		r.Post("/liaisons/{id}/points/{pointID}", h.GuideToPoint)
		r.Post("/faults/{id}", h.GuideToFault)
	})
}

// GuideToPoint обробляє POST /navigation/liaisons/{id}/points/{pointID}
func (h *NavigationHandler) GuideToPoint(w http.ResponseWriter, r *http.Request) {
	liaisonID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	pointID, ok := uuidParam(w, r, "pointID")
	if !ok {
		return
	}
	var request navigationRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	guidance, err := h.nav.GuideToPoint(r.Context(), liaisonID, pointID, request.Position.toDomain())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, guidance)
}

// GuideToFault обробляє POST /navigation/faults/{id}
func (h *NavigationHandler) GuideToFault(w http.ResponseWriter, r *http.Request) {
	faultID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var request navigationRequest
	if !decodeRequest(w, r, &request) {
		return
	}

	guidance, err := h.nav.GuideToFault(r.Context(), faultID, request.Position.toDomain())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, guidance)
}
