package benefitshandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrbenefits/internal/domain/audit"
	"hrbenefits/internal/domain/auth"
	"hrbenefits/internal/domain/benefits"
	"hrbenefits/internal/platform/storage"
	"hrbenefits/internal/transport/http/api"
	"hrbenefits/internal/transport/http/middleware"
	"hrbenefits/internal/transport/http/shared"
)

const endpointDisburse = "benefits.disburse"

// BatchObserver receives counts from batch operations.
type BatchObserver interface {
	ObserveBatch(operation string, processed, skipped int)
}

type Handler struct {
	Service     *benefits.Service
	Perms       middleware.PermissionStore
	Audit       *audit.Service
	Statements  storage.ObjectStore
	Idempotency middleware.Idempotency
	Metrics     BatchObserver
}

func NewHandler(service *benefits.Service, perms middleware.PermissionStore, auditSvc *audit.Service, statements storage.ObjectStore, idem middleware.Idempotency, observer BatchObserver) *Handler {
	return &Handler{
		Service:     service,
		Perms:       perms,
		Audit:       auditSvc,
		Statements:  statements,
		Idempotency: idem,
		Metrics:     observer,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermBenefitsRead, h.Perms)
	write := middleware.RequirePermission(auth.PermBenefitsWrite, h.Perms)
	approve := middleware.RequirePermission(auth.PermBenefitsApprove, h.Perms)
	disburse := middleware.RequirePermission(auth.PermBenefitsDisburse, h.Perms)
	configure := middleware.RequirePermission(auth.PermBenefitsConfig, h.Perms)
	archive := middleware.RequireAnyPermission(h.Perms, auth.PermBenefitsWrite, auth.PermBenefitsDisburse)

	r.Route("/benefits", func(r chi.Router) {
		r.With(read).Get("/records", h.handleListRecords)
		r.With(write).Post("/records", h.handleGetOrCreate)
		r.With(write).Post("/records/calculate", h.handleCalculate)
		r.With(write).Post("/records/calculate-month", h.handleCalculateMonth)
		r.With(read).Get("/records/{recordID}", h.handleGetRecord)
		r.With(read).Get("/records/{recordID}/audit", h.handleRecordAudit)
		r.With(write).Post("/records/{recordID}/deductions", h.handleAddDeduction)
		r.With(write).Post("/records/{recordID}/cancel", h.handleCancel)
		r.With(approve).Post("/approve", h.handleApprove)
		r.With(disburse).Post("/disbursements", h.handleSubmitBatch)
		r.With(disburse).Post("/disbursements/refresh", h.handleRefreshStatuses)
		r.With(disburse).Post("/disbursements/{reference}/status", h.handleProviderStatus)
		r.With(disburse).Post("/reconcile", h.handleReconcile)
		r.With(read).Get("/statistics", h.handleStatistics)
		r.With(read).Get("/statements", h.handleStatement)
		r.With(archive).Post("/statements/archive", h.handleArchiveStatement)
		r.With(read).Get("/employees/eligible", h.handleEligibleEmployees)
		r.With(read).Get("/employees/{employeeID}/config", h.handleGetConfig)
		r.With(configure).Put("/employees/{employeeID}/config", h.handleUpdateConfig)
	})
}

type periodPayload struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type recordPayload struct {
	EmployeeID    string `json:"employeeId"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	BusinessDays  *int   `json:"businessDays"`
	Saturdays     *int   `json:"saturdays"`
	TransportDays *int   `json:"transportDays"`
}

type deductionPayload struct {
	Kind   string          `json:"kind"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	Type   string          `json:"type"`
}

type idsPayload struct {
	IDs []string `json:"ids"`
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

type providerStatusPayload struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

func currentUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID(r))
	}
	return user, ok
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID(r))
		return false
	}
	return true
}

func queryPeriod(r *http.Request, v *shared.Validator) (int, int) {
	q := r.URL.Query()
	month := v.Int("month", q.Get("month"), 0)
	year := v.Int("year", q.Get("year"), 0)
	return month, year
}

func validateIDs(w http.ResponseWriter, r *http.Request, ids []string) bool {
	v := shared.NewValidator()
	if len(ids) == 0 {
		v.Add("ids", "must contain at least one record id")
	}
	for i, id := range ids {
		v.Required(fmt.Sprintf("ids[%d]", i), id, "must not be empty")
	}
	return !v.Reject(w, requestID(r))
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	reqID := requestID(r)
	switch {
	case errors.Is(err, benefits.ErrNotFound), errors.Is(err, benefits.ErrEmployeeNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, benefits.ErrInvalidDeduction),
		errors.Is(err, benefits.ErrInvalidPeriod),
		errors.Is(err, benefits.ErrInvalidConfiguration),
		errors.Is(err, benefits.ErrInvalidKind),
		errors.Is(err, benefits.ErrInvalidProviderStatus),
		errors.Is(err, benefits.ErrInvalidFilter):
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", err.Error(), details, reqID)
	case errors.Is(err, benefits.ErrInvalidStateTransition):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), reqID)
	case errors.Is(err, benefits.ErrConcurrentModification), errors.Is(err, benefits.ErrRecordExists):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), reqID)
	case errors.Is(err, benefits.ErrProviderFailure):
		api.FailWithDetails(w, http.StatusBadGateway, "provider_error", err.Error(), details, reqID)
	default:
		slog.Error("benefits request failed", "path", r.URL.Path, "requestId", reqID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}

func (h *Handler) observe(operation string, result benefits.BatchResult) {
	if h.Metrics != nil {
		h.Metrics.ObserveBatch(operation, result.Processed, result.SkippedCount)
	}
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	month, year := queryPeriod(r, v)
	page := v.Pagination(r)
	if v.Reject(w, requestID(r)) {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.GetByMonth(r.Context(), user.TenantID, month, year, benefits.RecordFilter{
		Status:     benefits.Status(strings.TrimSpace(q.Get("status"))),
		EmployeeID: strings.TrimSpace(q.Get("employeeId")),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleGetOrCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload recordPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	if v.Reject(w, requestID(r)) {
		return
	}
	rec, err := h.Service.GetOrCreate(r.Context(), user.TenantID, payload.EmployeeID, payload.Month, payload.Year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, rec, requestID(r))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	rec, err := h.Service.Record(r.Context(), user.TenantID, chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, rec, requestID(r))
}

func (h *Handler) handleRecordAudit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, requestID(r))
		return
	}
	v := shared.NewValidator()
	page := v.Pagination(r)
	if v.Reject(w, requestID(r)) {
		return
	}
	events, err := h.Audit.List(r.Context(), user.TenantID, audit.Filter{
		EntityType: benefits.EntityBenefitRecord,
		EntityID:   chi.URLParam(r, "recordID"),
	}, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, events, requestID(r))
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload recordPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	for field, value := range map[string]*int{
		"businessDays":  payload.BusinessDays,
		"saturdays":     payload.Saturdays,
		"transportDays": payload.TransportDays,
	} {
		if value != nil {
			v.Range(field, *value, 0, 31)
		}
	}
	if v.Reject(w, requestID(r)) {
		return
	}
	rec, err := h.Service.Calculate(r.Context(), user.TenantID, user.UserID, payload.EmployeeID, payload.Month, payload.Year, benefits.CalculationInput{
		BusinessDays:  payload.BusinessDays,
		Saturdays:     payload.Saturdays,
		TransportDays: payload.TransportDays,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, rec, requestID(r))
}

func (h *Handler) handleCalculateMonth(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload periodPayload
	if !decode(w, r, &payload) {
		return
	}
	result, err := h.Service.CalculateMonth(r.Context(), user.TenantID, user.UserID, payload.Month, payload.Year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	h.observe("calculate_month", result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleAddDeduction(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload deductionPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("kind", payload.Kind, "is required")
	v.Required("type", payload.Type, "is required")
	date, err := shared.ParseDate(payload.Date)
	if err != nil {
		v.Add("date", "must be a valid date in YYYY-MM-DD format")
	}
	if v.Reject(w, requestID(r)) {
		return
	}
	kind, err := benefits.ParseKind(payload.Kind)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	rec, err := h.Service.AddDeduction(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "recordID"), kind, benefits.DeductionInput{
		Date:   date,
		Amount: payload.Amount,
		Reason: payload.Reason,
		Type:   benefits.DeductionType(payload.Type),
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Created(w, rec, requestID(r))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload cancelPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("reason", payload.Reason, "is required")
	if v.Reject(w, requestID(r)) {
		return
	}
	rec, err := h.Service.Cancel(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "recordID"), payload.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, rec, requestID(r))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload idsPayload
	if !decode(w, r, &payload) || !validateIDs(w, r, payload.IDs) {
		return
	}
	result, err := h.Service.Approve(r.Context(), user.TenantID, user.UserID, payload.IDs)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	h.observe("approve", result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID(r))
		return
	}
	var payload idsPayload
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID(r))
		return
	}
	if !validateIDs(w, r, payload.IDs) {
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(raw)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, endpointDisburse, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID(r))
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), requestID(r))
			return
		}
	}

	result, err := h.Service.SubmitBatch(r.Context(), user.TenantID, user.UserID, payload.IDs)
	h.observe("disburse", result.BatchResult)
	if err != nil {
		writeError(w, r, err, result)
		return
	}

	if idempotencyKey != "" && h.Idempotency != nil {
		encoded, err := json.Marshal(result)
		if err == nil {
			err = h.Idempotency.Save(r.Context(), user.TenantID, user.UserID, endpointDisburse, idempotencyKey, requestHash, encoded)
		}
		if err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload providerStatusPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("status", payload.Status, "is required")
	if v.Reject(w, requestID(r)) {
		return
	}
	result, err := h.Service.ApplyProviderStatus(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "reference"), benefits.ProviderStatus(payload.Status), payload.Response)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	h.observe("provider_status", result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleRefreshStatuses(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload periodPayload
	if !decode(w, r, &payload) {
		return
	}
	result, err := h.Service.RefreshProviderStatuses(r.Context(), user.TenantID, user.UserID, payload.Month, payload.Year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	h.observe("status_refresh", result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload periodPayload
	if !decode(w, r, &payload) {
		return
	}
	result, err := h.Service.Reconcile(r.Context(), user.TenantID, user.UserID, payload.Month, payload.Year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	h.observe("reconcile", result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	month, year := queryPeriod(r, v)
	if v.Reject(w, requestID(r)) {
		return
	}
	stats, err := h.Service.Statistics(r.Context(), user.TenantID, month, year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, stats, requestID(r))
}

type renderedStatement struct {
	ext         string
	contentType string
	body        []byte
}

func render(stmt benefits.Statement, format string) (renderedStatement, error) {
	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := stmt.WriteCSV(&buf); err != nil {
			return renderedStatement{}, err
		}
		return renderedStatement{ext: "csv", contentType: "text/csv; charset=utf-8", body: buf.Bytes()}, nil
	case "pdf":
		if err := stmt.WritePDF(&buf); err != nil {
			return renderedStatement{}, err
		}
		return renderedStatement{ext: "pdf", contentType: "application/pdf", body: buf.Bytes()}, nil
	}
	return renderedStatement{}, fmt.Errorf("unsupported format %q", format)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	month, year := queryPeriod(r, v)
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	v.Enum("format", format, []string{"csv", "pdf"}, "must be csv or pdf")
	if v.Reject(w, requestID(r)) {
		return
	}
	stmt, err := h.Service.Statement(r.Context(), user.TenantID, month, year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out, err := render(stmt, format)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", out.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"benefits-%s.%s\"", stmt.Month, out.ext))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.body); err != nil {
		slog.Warn("statement write failed", "err", err)
	}
}

func (h *Handler) handleArchiveStatement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.Statements == nil {
		api.Fail(w, http.StatusServiceUnavailable, "storage_unavailable", "statement storage is not configured", requestID(r))
		return
	}
	var payload periodPayload
	if !decode(w, r, &payload) {
		return
	}
	stmt, err := h.Service.Statement(r.Context(), user.TenantID, payload.Month, payload.Year)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	locations := map[string]string{}
	for _, format := range []string{"csv", "pdf"} {
		out, err := render(stmt, format)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		key := fmt.Sprintf("%s/%s/benefits-%s.%s", user.TenantID, stmt.Month, stmt.Month, out.ext)
		location, err := h.Statements.Put(r.Context(), key, out.contentType, out.body)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		locations[format] = location
	}
	if h.Audit != nil {
		if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "benefit.statement.archive", "benefit_statement", stmt.Month, nil, locations); err != nil {
			slog.Warn("audit benefit.statement.archive failed", "err", err)
		}
	}
	api.Created(w, map[string]any{"month": stmt.Month, "locations": locations}, requestID(r))
}

func (h *Handler) handleEligibleEmployees(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := benefits.EmployeeFilter{
		Department: strings.TrimSpace(q.Get("department")),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		kind, err := benefits.ParseKind(raw)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		filter.Kind = kind
	}
	employees, err := h.Service.ListEligibleEmployees(r.Context(), user.TenantID, filter)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if employees == nil {
		employees = []benefits.Employee{}
	}
	api.Success(w, employees, requestID(r))
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	cfg, err := h.Service.Configuration(r.Context(), user.TenantID, chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, cfg, requestID(r))
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload benefits.Configuration
	if !decode(w, r, &payload) {
		return
	}
	cfg, err := h.Service.UpdateConfiguration(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "employeeID"), payload)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	api.Success(w, cfg, requestID(r))
}
