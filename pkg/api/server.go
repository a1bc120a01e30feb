package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/catalog"
	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/observability"
)

const (
	// DefaultMaxUpload bounds a multipart upload request body.
	DefaultMaxUpload = 50 << 20
	// DefaultShareDays applies when a share request omits expires_in_days.
	DefaultShareDays = 30

	multipartOverhead = 1 << 20
	maxJSONBody       = 1 << 20
	maxShareDays      = 3650
)

// Server exposes a Catalog over HTTP.
type Server struct {
	catalog   *catalog.Catalog
	limiter   *PrincipalRateLimiter
	telemetry *observability.Provider
	shareDays int
	maxUpload int64
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimiter enforces per-principal limits on /api routes.
func WithRateLimiter(rl *PrincipalRateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

func WithTelemetry(p *observability.Provider) Option {
	return func(s *Server) { s.telemetry = p }
}

// WithDefaultShareDays sets the expiry used when a share omits expires_in_days.
func WithDefaultShareDays(days int) Option {
	return func(s *Server) { s.shareDays = days }
}

// WithMaxUpload bounds upload bodies.
func WithMaxUpload(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server.
func NewServer(c *catalog.Catalog, opts ...Option) *Server {
	s := &Server{
		catalog:   c,
		shareDays: DefaultShareDays,
		maxUpload: DefaultMaxUpload,
		logger:    slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
//
//	GET    /health
//	POST   /api/records
//	GET    /api/records
//	GET    /api/records/{id}
//	GET    /api/records/{id}/download
//	POST   /api/records/{id}/share
//	GET    /api/records/{id}/grants
//	DELETE /api/records/{id}/grants/{grantID}
//	GET    /api/records/{id}/verify
//	GET    /api/records/{id}/audit
func (s *Server) Handler() http.Handler {
	records := http.NewServeMux()
	records.HandleFunc("POST /api/records", s.handleUpload)
	records.HandleFunc("GET /api/records", s.handleList)
	records.HandleFunc("GET /api/records/{id}", s.handleGet)
	records.HandleFunc("GET /api/records/{id}/download", s.handleDownload)
	records.HandleFunc("POST /api/records/{id}/share", s.handleShare)
	records.HandleFunc("GET /api/records/{id}/grants", s.handleGrants)
	records.HandleFunc("DELETE /api/records/{id}/grants/{grantID}", s.handleRevoke)
	records.HandleFunc("GET /api/records/{id}/verify", s.handleVerify)
	records.HandleFunc("GET /api/records/{id}/audit", s.handleAudit)

	var api http.Handler = RequirePrincipal(records)
	if s.limiter != nil {
		api = s.limiter.Middleware(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("/api/", api)
	return Instrument(s.logger, s.telemetry, root)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func principal(r *http.Request) string {
	return contracts.PrincipalFrom(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.catalog.Health(r.Context())
	status := http.StatusOK
	if report.Status == catalog.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type uploadResponse struct {
	RecordID       string `json:"record_id"`
	ContentPointer string `json:"content_pointer"`
	ContentHash    string `json:"content_hash"`
	AnchorStatus   string `json:"anchor_status"`
	Provenance     string `json:"provenance"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Payload Too Large", "Upload exceeds the size limit")
			return
		}
		WriteBadRequest(w, "Expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteBadRequest(w, "Unreadable file field")
		return
	}

	req := catalog.UploadRequest{
		FileName:    header.Filename,
		RecordType:  r.FormValue("record_type"),
		AccessLevel: r.FormValue("access_level"),
		Metadata:    json.RawMessage(r.FormValue("metadata")),
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		req.MimeType = ct
	}

	rec, err := s.catalog.Upload(r.Context(), principal(r), data, req)
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		RecordID:       rec.ID,
		ContentPointer: rec.ContentPointer,
		ContentHash:    rec.ContentHash,
		AnchorStatus:   string(rec.State),
		Provenance:     string(rec.Provenance),
	})
}

type listResponse struct {
	Records []contracts.Record `json:"records"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := contracts.RecordFilter{RecordType: q.Get("record_type")}
	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			WriteBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	records, total, err := s.catalog.List(r.Context(), principal(r), f)
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	if records == nil {
		records = []contracts.Record{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = catalog.DefaultPageSize
	}
	writeJSON(w, http.StatusOK, listResponse{Records: records, Total: total, Limit: min(limit, catalog.MaxPageSize), Offset: f.Offset})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.catalog.Get(r.Context(), r.PathValue("id"), principal(r))
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type downloadResponse struct {
	RecordID string `json:"record_id"`
	FileData string `json:"file_data"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	out, err := s.catalog.Download(r.Context(), r.PathValue("id"), principal(r))
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, downloadResponse{
		RecordID: out.Record.ID,
		FileData: base64.StdEncoding.EncodeToString(out.Data),
		FileName: out.FileName,
		MimeType: out.MimeType,
	})
}

type shareRequest struct {
	UserID        string `json:"user_id"`
	ExpiresInDays *int   `json:"expires_in_days"`
}

type shareResponse struct {
	GrantID   string     `json:"grant_id"`
	GranteeID string     `json:"grantee_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" {
		WriteBadRequest(w, "Missing required field: user_id")
		return
	}
	days := s.shareDays
	if req.ExpiresInDays != nil {
		days = *req.ExpiresInDays
	}
	if days < 0 || days > maxShareDays {
		WriteBadRequest(w, "expires_in_days must be between 0 and "+strconv.Itoa(maxShareDays))
		return
	}

	g, err := s.catalog.Share(r.Context(), r.PathValue("id"), principal(r), req.UserID, time.Duration(days)*24*time.Hour)
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{GrantID: g.ID, GranteeID: g.GranteeID, ExpiresAt: g.ExpiresAt})
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := s.catalog.Grants(r.Context(), r.PathValue("id"), principal(r))
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	if grants == nil {
		grants = []contracts.AccessGrant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Revoke(r.Context(), r.PathValue("id"), r.PathValue("grantID"), principal(r)); err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.catalog.Verify(r.Context(), r.PathValue("id"), principal(r))
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type auditResponse struct {
	RecordID string                 `json:"record_id"`
	Entries  []contracts.AuditEntry `json:"entries"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := s.catalog.ListAudit(r.Context(), id, principal(r))
	if err != nil {
		WriteCatalogError(w, r, err)
		return
	}
	if entries == nil {
		entries = []contracts.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{RecordID: id, Entries: entries})
}
