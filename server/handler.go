// Package server exposes the registry client over HTTP: a lookup endpoint
// matching instruction accounts against cached registries, a liveness probe
// and the prometheus metrics handler.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jet-lab/lookup-table-registry-go/client"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// RegistryAPI is the part of the registry client the handlers use.
type RegistryAPI interface {
	UpdateRegistries(ctx context.Context, authorities []solana.PublicKey) ([]solana.PublicKey, error)
	FindAddresses(instructions []client.Instruction, authorities []solana.PublicKey) client.FindAddressesResult
}

// HealthChecker reports whether the backing ledger node is usable.
type HealthChecker interface {
	GetHealth(ctx context.Context) error
}

// APIHandler provides the implementation of each endpoint of the lookup API.
type APIHandler struct {
	log     zerolog.Logger
	backend RegistryAPI
	health  HealthChecker
}

// NewAPIHandler creates the handler set over the given backend. A nil health
// checker makes the liveness probe unconditionally healthy.
func NewAPIHandler(log zerolog.Logger, backend RegistryAPI, health HealthChecker) *APIHandler {
	return &APIHandler{
		log:     log.With().Str("component", "lookup_api").Logger(),
		backend: backend,
		health:  health,
	}
}

type instructionBody struct {
	Program  solana.PublicKey   `json:"program"`
	Accounts []solana.PublicKey `json:"accounts"`
}

type getAddressesRequest struct {
	Instructions []instructionBody  `json:"instructions"`
	Authorities  []solana.PublicKey `json:"authorities"`
}

type getAddressesResponse struct {
	Addresses         []solana.PublicKey `json:"addresses"`
	DistinctAccounts  int                `json:"distinct_accounts"`
	UnmatchedAccounts int                `json:"unmatched_accounts"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type modelError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetLookupAddresses refreshes the registries of the requested authorities
// and returns the lookup tables covering the accounts the instructions touch.
func (h *APIHandler) GetLookupAddresses(w http.ResponseWriter, r *http.Request) {
	lg := h.log.With().Str("request_url", r.URL.String()).Logger()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	var req getAddressesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), lg)
		return
	}

	// refreshing is best effort, an authority that cannot be refreshed right
	// now only reduces the match set
	if failed, err := h.backend.UpdateRegistries(r.Context(), req.Authorities); err != nil {
		lg.Warn().Err(err).Int("failed_authorities", len(failed)).Msg("registry refresh incomplete")
	}

	instructions := make([]client.Instruction, 0, len(req.Instructions))
	for _, ix := range req.Instructions {
		instructions = append(instructions, client.Instruction{
			ProgramID: ix.Program,
			Accounts:  ix.Accounts,
		})
	}
	result := h.backend.FindAddresses(instructions, req.Authorities)

	addresses := result.Addresses
	if addresses == nil {
		addresses = []solana.PublicKey{}
	}
	h.jsonResponse(w, getAddressesResponse{
		Addresses:         addresses,
		DistinctAccounts:  result.DistinctAccounts,
		UnmatchedAccounts: result.UnmatchedAccounts,
	}, lg)
}

// GetHealth reports liveness, probing the ledger node when a checker is
// configured.
func (h *APIHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	lg := h.log.With().Str("request_url", r.URL.String()).Logger()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	if h.health != nil {
		if err := h.health.GetHealth(r.Context()); err != nil {
			lg.Warn().Err(err).Msg("ledger node unhealthy")
			h.errorResponse(w, http.StatusServiceUnavailable, "ledger node unhealthy", lg)
			return
		}
	}
	h.jsonResponse(w, healthResponse{Status: "ok"}, lg)
}

func (h *APIHandler) jsonResponse(w http.ResponseWriter, payload interface{}, lg zerolog.Logger) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		lg.Error().Err(err).Msg("failed to encode response")
		h.errorResponse(w, http.StatusInternalServerError, "error generating response", lg)
		return
	}
	if _, err := w.Write(encoded); err != nil {
		lg.Error().Err(err).Msg("failed to write response")
	}
}

// errorResponse sends an error response with the given status code and a
// model error with the given message in the body.
func (h *APIHandler) errorResponse(w http.ResponseWriter, code int, message string, lg zerolog.Logger) {
	w.WriteHeader(code)
	encoded, err := json.Marshal(modelError{
		Code:    code,
		Message: message,
	})
	if err != nil {
		lg.Error().Str("response_message", message).Msg("failed to encode error message")
		return
	}
	if _, err := w.Write(encoded); err != nil {
		lg.Error().Err(err).Msg("failed to send error response")
	}
}
