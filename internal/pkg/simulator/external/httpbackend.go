package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

// HTTPBackend speaks JSON over HTTP to a physics engine service.
//
//	GET  /healthz   -> 200
//	POST /validate  -> 200 ok | 422 {"error": ...}
//	POST /solve     -> 200 {"indicators": ..., "warnings": ...}
//	                 | 422 {"kind": "convergence", "error": ...}
//	                 | 500 {"error": ...}
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend returns a backend for the engine service at baseURL.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{baseURL: baseURL, client: client}
}

type solveResponse struct {
	Indicators map[string]float64 `json:"indicators"`
	Warnings   []string           `json:"warnings"`
}

type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Ping checks the engine health endpoint.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health returned %d", resp.StatusCode)
	}
	return nil
}

// Validate posts the scenario for engine-side validation.
func (b *HTTPBackend) Validate(ctx context.Context, s scenario.Scenario) error {
	resp, err := b.post(ctx, "/validate", s)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return simulator.ValidationError{Reason: readError(resp.Body).Error}
}

// Solve posts the model and decodes the indicator payload.
func (b *HTTPBackend) Solve(ctx context.Context, m simulator.NetworkModel) (simulator.EngineResult, error) {
	resp, err := b.post(ctx, "/solve", m)
	if err != nil {
		return simulator.EngineResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var sr solveResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return simulator.EngineResult{}, simulator.RuntimeError{Reason: "malformed engine response", Err: err}
		}
		return simulator.EngineResult{Indicators: sr.Indicators, Warnings: sr.Warnings}, nil
	case http.StatusUnprocessableEntity:
		er := readError(resp.Body)
		if er.Kind == "convergence" {
			return simulator.EngineResult{}, simulator.ConvergenceError{Reason: er.Error}
		}
		return simulator.EngineResult{}, simulator.RuntimeError{Reason: er.Error}
	}
	er := readError(resp.Body)
	return simulator.EngineResult{}, simulator.RuntimeError{
		Reason: fmt.Sprintf("engine returned %d: %s", resp.StatusCode, er.Error),
	}
}

func (b *HTTPBackend) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.client.Do(req)
}

func readError(r io.Reader) errorResponse {
	var er errorResponse
	if err := json.NewDecoder(r).Decode(&er); err != nil || er.Error == "" {
		er.Error = "no detail supplied"
	}
	return er
}
