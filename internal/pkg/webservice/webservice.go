// Package webservice exposes the orchestrator over HTTP.
package webservice

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/unplab/unp_core/internal/pkg/orchestrator"
	"github.com/unplab/unp_core/internal/pkg/scenario"
)

// Service routes scenario runs and result lookups.
type Service struct {
	orch   *orchestrator.Orchestrator
	router *mux.Router
}

// scenarioRequest is the POST body: a scenario plus raw parameter overrides.
type scenarioRequest struct {
	scenario.Scenario
	ParamOverrides map[string]interface{} `json:"params"`
}

// New returns a configured web service.
func New(orch *orchestrator.Orchestrator) *Service {
	s := &Service{orch: orch, router: mux.NewRouter()}
	s.router.HandleFunc("/api/v1/scenario", s.RunHandler).Methods("POST")
	s.router.HandleFunc("/api/v1/result/{fingerprint}", s.ResultHandler).Methods("GET")
	s.router.HandleFunc("/healthz", s.HealthHandler).Methods("GET")
	return s
}

// Router exposes the mux for embedding and tests.
func (s *Service) Router() *mux.Router { return s.router }

// ListenAndServe blocks serving HTTP on addr.
func (s *Service) ListenAndServe(addr string) error {
	log.Println("[Webservice] listening on", addr)
	return http.ListenAndServe(addr, s.router)
}

// HealthHandler reports liveness.
func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
}

// RunHandler runs a scenario through the cache and orchestrator and returns
// the standardized result. Failed scenarios answer 422 with the result body.
func (s *Service) RunHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON: " + err.Error()})
		return
	}

	res, err := s.orch.RunScenario(r.Context(), req.Scenario, req.ParamOverrides)
	if err != nil && res.Scenario == "" {
		// infrastructure failure before a result could be produced
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// ResultHandler returns the cached result for a fingerprint, if any.
func (s *Service) ResultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	fp := mux.Vars(r)["fingerprint"]
	res, ok := s.orch.Cache().Lookup(r.Context(), fp)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cached result for fingerprint"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Println("[Webservice] write:", err)
	}
}
