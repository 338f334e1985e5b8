// Package api serves the read-only query surface over the indexed entities
// and aggregates, plus Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"veriframe-indexer/database"
	"veriframe-indexer/logger"
)

type Server struct {
	db  *gorm.DB
	srv *http.Server
}

func New(db *gorm.DB, address string) *Server {
	s := &Server{db: db}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/workers/{address}", s.worker).Methods(http.MethodGet)
	r.HandleFunc("/workers/{address}/reputation", s.reputationHistory).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.job).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/events", s.jobEvents).Methods(http.MethodGet)
	r.HandleFunc("/stats/global", s.globalStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/daily", s.dailyStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) worker(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	worker, err := database.FetchWorker(r.Context(), s.db, address)
	if err != nil {
		writeLookupError(w, err, "worker not found")
		return
	}

	writeJSON(w, worker)
}

func (s *Server) reputationHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	history, err := database.FetchReputationHistory(r.Context(), s.db, address)
	if err != nil {
		writeServerError(w, err)
		return
	}

	writeJSON(w, history)
}

type jobResponse struct {
	database.Job
	// Derived from the deadline at query time, never stored.
	Expired bool `json:"expired"`
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := database.FetchJob(r.Context(), s.db, id)
	if err != nil {
		writeLookupError(w, err, "job not found")
		return
	}

	writeJSON(w, jobResponse{Job: *job, Expired: job.Expired(uint64(time.Now().Unix()))})
}

func (s *Server) jobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	events, err := database.FetchJobEvents(r.Context(), s.db, id)
	if err != nil {
		writeServerError(w, err)
		return
	}

	writeJSON(w, events)
}

func (s *Server) globalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.FetchGlobalStats(r.Context(), s.db)
	if err != nil {
		writeLookupError(w, err, "no stats yet")
		return
	}

	writeJSON(w, stats)
}

func (s *Server) dailyStats(w http.ResponseWriter, r *http.Request) {
	from := queryUint(r, "from")
	to := queryUint(r, "to")

	stats, err := database.FetchDailyStats(r.Context(), s.db, from, to)
	if err != nil {
		writeServerError(w, err)
		return
	}

	writeJSON(w, stats)
}

func queryUint(r *http.Request, name string) uint64 {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("writeJSON: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeLookupError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	writeServerError(w, err)
}

func writeServerError(w http.ResponseWriter, err error) {
	logger.Error("API query error: %s", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
