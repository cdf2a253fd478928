// Package api is the read-only HTTP surface used by the companion web view.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/api/recovery"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/api/respond"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/attendance"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/services"
)

const maxListLimit = 500

// NewRouter wires every route. isHealthy reports the aggregated dependency
// state; nil means always healthy.
func NewRouter(concerts *services.ConcertService, att *attendance.Service, isHealthy func() bool) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	h := &concertHandler{concerts: concerts, attendance: att, now: time.Now}
	health := &healthHandler{isHealthy: isHealthy}

	router.HandleFunc("/api/health", health.CheckHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/concerts", h.ListUpcoming).Methods(http.MethodGet)
	router.HandleFunc("/api/concerts/{concertId}", h.GetConcert).Methods(http.MethodGet)
	router.HandleFunc("/api/concerts/{concertId}/responses", h.GetResponses).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

type healthHandler struct {
	isHealthy func() bool
}

// CheckHealth handles GET /api/health. The status code is always 200; the
// body says whether dependencies are reachable.
func (h *healthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.isHealthy != nil && !h.isHealthy() {
		status = "unhealthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type concertHandler struct {
	concerts   *services.ConcertService
	attendance *attendance.Service
	now        func() time.Time
}

// ListUpcoming GET /api/concerts?from=YYYY-MM-DD&limit=N
func (h *concertHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := q.Get("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			respond.WriteBadRequest(w, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			respond.WriteBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	list, err := h.concerts.ListUpcoming(r.Context(), from, limit)
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"concerts": list, "count": len(list)})
}

// GetConcert GET /api/concerts/{concertId}
func (h *concertHandler) GetConcert(w http.ResponseWriter, r *http.Request) {
	c, err := h.concerts.GetConcert(r.Context(), mux.Vars(r)["concertId"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

// GetResponses GET /api/concerts/{concertId}/responses
func (h *concertHandler) GetResponses(w http.ResponseWriter, r *http.Request) {
	sum, err := h.attendance.GetResponses(r.Context(), mux.Vars(r)["concertId"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sum)
}
