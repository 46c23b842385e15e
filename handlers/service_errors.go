package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/studygen/services"
	"github.com/upb/studygen/services/generation"
	"github.com/upb/studygen/utils"
	"go.uber.org/zap"
)

// GenerationFailureResponse is the body of a failed generation request
type GenerationFailureResponse struct {
	OK      bool                   `json:"ok"`
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Trace   *TraceResponse         `json:"trace,omitempty"`
}

// StatusForError maps a failure kind to an HTTP status. Only a deadline and
// invalid input have dedicated codes; everything else is a server error.
func StatusForError(err error) int {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsDeadlineExceededError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleGenerationError writes a GenerationFailure, or any other error from
// the generation service, as a failure body with its kind and trace.
func HandleGenerationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	response := GenerationFailureResponse{
		OK:      false,
		Kind:    "InternalError",
		Message: services.ErrInternal.Message,
	}

	var failure *generation.GenerationFailure
	if errors.As(err, &failure) {
		response.Kind = failure.Kind()
		response.Message = failure.Message
		response.Details = services.GetErrorDetails(err)
		response.Trace = NewTraceResponse(failure.Trace)
	}

	if status == http.StatusInternalServerError {
		logger.Error("generation failed",
			zap.String("kind", response.Kind),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	} else {
		logger.Warn("generation failed",
			zap.String("kind", response.Kind),
			zap.Error(err))
	}

	if err := utils.WriteJSON(w, status, response); err != nil {
		logger.Error("failed to write generation failure response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
