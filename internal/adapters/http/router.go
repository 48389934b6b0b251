package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

// multipartMemoryLimit keeps small uploads in memory; larger parts spill
// to temp files inside ParseMultipartForm.
const multipartMemoryLimit = 16 << 20

type Router struct {
	ingestor  ports.DocumentIngestor
	registry  ports.DocumentRegistry
	lifecycle ports.ProjectLifecycle
	ledger    ports.ExpenseLedger
	oracle    ports.FieldExtractor

	metricsHandler http.Handler
	logger         *slog.Logger
	now            func() time.Time
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	registry ports.DocumentRegistry,
	lifecycle ports.ProjectLifecycle,
	ledger ports.ExpenseLedger,
	oracle ports.FieldExtractor,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingestor:       ingestor,
		registry:       registry,
		lifecycle:      lifecycle,
		ledger:         ledger,
		oracle:         oracle,
		metricsHandler: metricsHandler,
		logger:         logger,
		now:            time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/scopes/", rt.routeScopes)
	mux.HandleFunc("/v1/projects", rt.createProject)
	mux.HandleFunc("/v1/projects/", rt.routeProjects)
	mux.HandleFunc("/v1/documents/scan", rt.scanDocument)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// routeScopes dispatches /v1/scopes/{kind}/{id}/documents[/{type}] and
// /v1/scopes/{kind}/{id}/expenses.
func (rt *Router) routeScopes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/scopes/"))
	if len(parts) < 3 {
		writeJSON(w, http.StatusNotFound, errorBody("unknown scope route"))
		return
	}

	scope := domain.ScopeRef{Kind: domain.ScopeKind(parts[0]), ID: parts[1]}
	if !scope.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid scope %q/%q", parts[0], parts[1])))
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "documents" && r.Method == http.MethodPost:
		rt.uploadDocument(w, r, scope)
	case len(parts) == 3 && parts[2] == "documents" && r.Method == http.MethodGet:
		rt.listDocuments(w, scope)
	case len(parts) == 4 && parts[2] == "documents" && r.Method == http.MethodDelete:
		rt.removeDocument(w, r, scope, domain.DocumentType(parts[3]))
	case len(parts) == 3 && parts[2] == "expenses" && r.Method == http.MethodPost:
		rt.recordExpense(w, r, scope)
	case len(parts) == 3 && parts[2] == "expenses" && r.Method == http.MethodGet:
		rt.listExpenses(w, scope)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request, scope domain.ScopeRef) {
	req, err := rt.ingestRequestFromForm(r, scope)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	doc, err := rt.ingestor.Ingest(r.Context(), *req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	supersededID := rt.registry.Upload(r.Context(), doc)

	writeJSON(w, http.StatusCreated, map[string]any{
		"document":      doc,
		"status":        doc.StatusAt(rt.now()),
		"superseded_id": supersededID,
		"degraded":      doc.Artifact.Inline,
	})
}

// ingestRequestFromForm builds the per-call ingest context. The
// confirm_large form flag is the HTTP rendition of the caller-supplied
// confirmation capability: the UI asks the user, then resubmits with the
// flag set.
func (rt *Router) ingestRequestFromForm(r *http.Request, scope domain.ScopeRef) (*ports.IngestRequest, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse form", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse form", fmt.Errorf("multipart field 'file' is required"))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}

	req := ports.IngestRequest{
		Scope:    scope,
		Type:     domain.DocumentType(r.FormValue("type")),
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
		Photo:    r.FormValue("photo") == "true",
	}
	if r.FormValue("confirm_large") == "true" {
		req.Confirm = func(int64) bool { return true }
	}
	if raw := r.FormValue("document_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse form", fmt.Errorf("document_date %q: want YYYY-MM-DD", raw))
		}
		req.DocumentDate = &parsed
	}
	return &req, nil
}

type documentView struct {
	domain.Document
	Status domain.DocumentStatus `json:"document_status"`
}

func (rt *Router) listDocuments(w http.ResponseWriter, scope domain.ScopeRef) {
	now := rt.now()
	docs := rt.registry.List(scope)
	views := make([]documentView, 0, len(docs))
	for i := range docs {
		views = append(views, documentView{
			Document: docs[i],
			Status:   docs[i].StatusAt(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (rt *Router) removeDocument(w http.ResponseWriter, r *http.Request, scope domain.ScopeRef, docType domain.DocumentType) {
	if err := rt.registry.Remove(r.Context(), scope, docType); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": string(docType)})
}

func (rt *Router) recordExpense(w http.ResponseWriter, r *http.Request, scope domain.ScopeRef) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse form", err))
		return
	}

	amount, err := strconv.ParseInt(r.FormValue("amount_cents"), 10, 64)
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse form", fmt.Errorf("amount_cents: %w", err)))
		return
	}

	input := ports.ExpenseInput{
		Scope:       scope,
		Label:       r.FormValue("label"),
		AmountCents: amount,
	}
	if raw := r.FormValue("spent_at"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse form", fmt.Errorf("spent_at %q: want YYYY-MM-DD", raw)))
			return
		}
		input.SpentAt = parsed
	}

	if file, header, err := r.FormFile("receipt"); err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read receipt", readErr))
			return
		}
		receipt := ports.IngestRequest{
			Scope:    scope,
			Type:     domain.TypeReceipt,
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
			Photo:    true,
		}
		if r.FormValue("confirm_large") == "true" {
			receipt.Confirm = func(int64) bool { return true }
		}
		input.Receipt = &receipt
	}

	expense, err := rt.ledger.Record(r.Context(), input)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (rt *Router) listExpenses(w http.ResponseWriter, scope domain.ScopeRef) {
	writeJSON(w, http.StatusOK, map[string]any{
		"expenses":    rt.ledger.List(scope),
		"total_cents": rt.ledger.Total(scope),
	})
}

func (rt *Router) createProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var req struct {
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	project, err := rt.lifecycle.Create(r.Context(), req.Name, start, end)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// routeProjects dispatches /v1/projects/{id}[/transition|/tick|/dates].
func (rt *Router) routeProjects(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/projects/"))
	if len(parts) == 0 || parts[0] == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("project id is required"))
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rt.getProject(w, r, id)
	case len(parts) == 2 && parts[1] == "transition" && r.Method == http.MethodPost:
		rt.transitionProject(w, r, id)
	case len(parts) == 2 && parts[1] == "tick" && r.Method == http.MethodPost:
		rt.tickProject(w, r, id)
	case len(parts) == 2 && parts[1] == "dates" && r.Method == http.MethodPut:
		rt.setProjectDates(w, r, id)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}
}

func (rt *Router) getProject(w http.ResponseWriter, r *http.Request, id string) {
	project, err := rt.lifecycle.Get(id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	missing, err := rt.lifecycle.ClosingGuard(id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":          project,
		"missing_to_close": missing,
	})
}

func (rt *Router) transitionProject(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Event     string `json:"event"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}

	opts := ports.TransitionOptions{}
	var err error
	if opts.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if opts.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		rt.writeError(w, r, err)
		return
	}

	project, err := rt.lifecycle.Transition(r.Context(), id, domain.LifecycleEvent(req.Event), opts)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (rt *Router) tickProject(w http.ResponseWriter, r *http.Request, id string) {
	project, err := rt.lifecycle.Tick(r.Context(), id, rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (rt *Router) setProjectDates(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	project, err := rt.lifecycle.SetDates(r.Context(), id, start, end)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// scanDocument asks the oracle for field guesses. Oracle failures come
// back as a null result, never an error: manual entry must stay open.
func (rt *Router) scanDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable upload"))
		return
	}

	fields, err := rt.oracle.Extract(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		rt.logger.Warn("scan oracle unavailable",
			"request_id", requestIDFromContext(r.Context()),
			"filename", header.Filename,
			"error", err,
		)
		fields = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]any{"error": err.Error()}
	if guardErr, ok := domain.AsGuardError(err); ok {
		body["missing_documents"] = guardErr.Missing
	}
	if status >= 500 {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse date", fmt.Errorf("%q: want YYYY-MM-DD", raw))
	}
	return &parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
