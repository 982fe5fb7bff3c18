package edge

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/evaluator"
	"github.com/rafaeljc/mimir/internal/logger"
)

// InitializeRequest is the POST /v1/initialize payload.
type InitializeRequest struct {
	User evaluator.User `json:"user"`

	// Hash selects the name-hashing algorithm: sha256 (default), djb2,
	// or none.
	Hash string `json:"hash"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleInitialize processes the POST /v1/initialize request.
//
// Responsibilities:
// 1. Decodes the JSON payload into the InitializeRequest DTO.
// 2. Validates that the request identifies a user.
// 3. Projects the catalog for that user.
// 4. Returns 503 while the store has no catalog to serve.
func (a *API) handleInitialize(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// 1. Decode Request
	var req InitializeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	// 2. Validate
	if req.User.UserID == "" && len(req.User.CustomIDs) == 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_MISSING_USER",
			Message: "Request must include a user with a userID or customIDs",
		})
		return
	}

	// 3. Project
	response := a.evaluator.GetClientInitializeResponse(req.User, evaluator.ProjectionOptions{
		HashAlgorithm: req.Hash,
	}, a.sdkVersion)

	// 4. Not ready yet: the catalog has never synced.
	if response == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NOT_READY",
			Message: "Rule catalog has not been initialized yet",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}
