package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/middleware"
)

// MaxRequestBodyBytes caps the bulk request body.
const MaxRequestBodyBytes = 1 << 20

// Dispatcher is implemented by *app.Dispatcher.
type Dispatcher interface {
	Run(ctx context.Context, req domain.DispatchRequest) (*domain.RunSummary, error)
}

type DispatchHandler struct {
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewDispatchHandler(dispatcher Dispatcher, validate *validator.Validate, logger *slog.Logger) *DispatchHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	// Report JSON field names in validation messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &DispatchHandler{
		dispatcher: dispatcher,
		validate:   validate,
		logger:     logger.With("handler", "bulk_dispatch"),
	}
}

// RegisterRoutes mounts the bulk endpoint under both of its paths.
func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/messages/bulk", h.HandleBulkSend)
	r.Post("/send-bulk-messages", h.HandleBulkSend)
}

// HandleBulkSend runs one dispatch and answers with its summary.
func (h *DispatchHandler) HandleBulkSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi_middleware.GetReqID(ctx)
	logger := h.logger.With("request_id", requestID)

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		logger.WarnContext(ctx, "Bulk send without tenant in context")
		middleware.WriteError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, _ := middleware.UserFromContext(ctx)
	logger = logger.With("tenant_id", tenantID, "auth_user_id", user.ID)

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	defer r.Body.Close()

	var req BulkMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "Bulk request body too large", "limit_bytes", tooLarge.Limit)
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		logger.WarnContext(ctx, "Failed to decode bulk request", "error", err)
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Validation failed for bulk request", "error", err)
		middleware.WriteError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	gw, run, err := parseOverrides(r.Header, h.validate)
	if err != nil {
		logger.WarnContext(ctx, "Invalid override header", "error", err)
		middleware.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	dispatchReq := domain.DispatchRequest{
		TenantID:      tenantID,
		UserID:        user.ID,
		RequestID:     requestID,
		TargetIDs:     req.TargetIDs,
		TemplateID:    strings.TrimSpace(req.TemplateID),
		CustomMessage: req.CustomMessage,
		Gateway:       gw,
		Run:           run,
	}

	// A client disconnect must not abort a run that already started sending.
	summary, err := h.dispatcher.Run(context.WithoutCancel(ctx), dispatchReq)
	if err != nil {
		status, message := statusForError(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "Bulk dispatch failed", "error", err)
		} else {
			logger.WarnContext(ctx, "Bulk dispatch rejected", "error", err, "status", status)
		}
		middleware.WriteError(w, r, status, message)
		return
	}

	logger.InfoContext(ctx, "Bulk dispatch finished",
		"total", summary.Total, "success", summary.Success, "failed", summary.Failed)
	writeJSON(w, logger, http.StatusOK, BulkMessageResponse{
		Success:   true,
		Data:      summary,
		RequestID: requestID,
	})
}

// statusForError maps pre-flight errors to HTTP statuses.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request payload"
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	if fe.Param() != "" {
		return fmt.Sprintf("validation failed: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("validation failed: %s must satisfy %s", field, fe.Tag())
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}
