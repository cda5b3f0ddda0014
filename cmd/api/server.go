package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meritflow/auth"
	"meritflow/dispute"
	"meritflow/evidence"
	"meritflow/roster"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// disputeService is the slice of the dispute engine the HTTP layer consumes.
type disputeService interface {
	Create(ctx context.Context, params dispute.CreateParams) (dispute.Dispute, error)
	Get(ctx context.Context, disputeID string, actor dispute.Actor) (dispute.Projection, error)
	List(ctx context.Context, actor dispute.Actor, status dispute.Status) ([]dispute.Dispute, error)
	Respond(ctx context.Context, params dispute.RespondParams) (dispute.Dispute, error)
	Assign(ctx context.Context, disputeID string, actor dispute.Actor) (dispute.Dispute, error)
	Recuse(ctx context.Context, disputeID string, actor dispute.Actor) (dispute.Dispute, error)
	Resolve(ctx context.Context, params dispute.ResolveParams) (dispute.Dispute, error)
	Appeal(ctx context.Context, disputeID string, actor dispute.Actor) (dispute.Dispute, error)
	Withdraw(ctx context.Context, disputeID string, actor dispute.Actor) (dispute.Dispute, error)
	Mediate(ctx context.Context, params dispute.MediateParams) (dispute.Dispute, error)
	AddComment(ctx context.Context, params dispute.CommentParams) (dispute.Comment, error)
	ListComments(ctx context.Context, disputeID string, actor dispute.Actor) ([]dispute.Comment, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(tokenString string) (string, auth.Role, error)
}

type rosterService interface {
	GetByID(ctx context.Context, id string) (roster.Profile, error)
	List(ctx context.Context, limit int) ([]roster.Profile, error)
}

// Server wires HTTP routes onto the domain services.
type Server struct {
	authService    authService
	disputeService disputeService
	rosterService  rosterService

	evidenceSigner *evidence.Signer
	evidenceDir    string
}

func NewServer(authSvc authService, disputeSvc disputeService, rosterSvc rosterService) *Server {
	return &Server{
		authService:    authSvc,
		disputeService: disputeSvc,
		rosterService:  rosterSvc,
	}
}

// WithEvidenceDownloads enables the /files route serving signed evidence
// paths out of dir.
func (s *Server) WithEvidenceDownloads(signer *evidence.Signer, dir string) *Server {
	s.evidenceSigner = signer
	s.evidenceDir = dir
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/disputes", s.withAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.withAuth(s.handleDisputeDetail))
	mux.HandleFunc("/api/arbitrators", s.withAuth(s.handleListArbitrators))
	mux.HandleFunc("/api/arbitrators/", s.withAuth(s.handleGetArbitrator))
	if s.evidenceSigner != nil {
		mux.HandleFunc("/files", s.handleEvidenceDownload)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// withAuth resolves the bearer token into the caller's identity and role.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func actorFromContext(ctx context.Context) dispute.Actor {
	userID, _ := ctx.Value(ctxKeyUserID).(string)
	role, _ := ctx.Value(ctxKeyRole).(auth.Role)
	return dispute.Actor{UserID: userID, Role: dispute.Role(role)}
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	Points    int64  `json:"points"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		Points:    u.Points,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeJSONError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			internalError(w, "register", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		internalError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}{Token: result.Token, User: toUserResponse(result.User)})
}

type disputeResponse struct {
	ID              string            `json:"id"`
	TaskID          string            `json:"taskId"`
	SubmissionID    string            `json:"submissionId"`
	DisputantID     string            `json:"disputantId"`
	ReviewerID      string            `json:"reviewerId"`
	ArbitratorID    *string           `json:"arbitratorId,omitempty"`
	Status          string            `json:"status"`
	Tier            string            `json:"tier"`
	Reason          string            `json:"reason"`
	ResponseText    *string           `json:"responseText,omitempty"`
	ResponseLinks   []string          `json:"responseLinks,omitempty"`
	EvidenceFiles   []string          `json:"evidenceFiles,omitempty"`
	EvidenceURLs    map[string]string `json:"evidenceUrls,omitempty"`
	Resolution      *string           `json:"resolution,omitempty"`
	ResolutionNotes *string           `json:"resolutionNotes,omitempty"`
	NewQualityScore *int              `json:"newQualityScore,omitempty"`
	Redacted        bool              `json:"redacted,omitempty"`

	ResponseDeadline  *string `json:"responseDeadline,omitempty"`
	MediationDeadline *string `json:"mediationDeadline,omitempty"`
	AppealDeadline    *string `json:"appealDeadline,omitempty"`
	ResolvedAt        *string `json:"resolvedAt,omitempty"`
	CreatedAt         string  `json:"createdAt"`
}

func rfc3339(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toDisputeResponse(d dispute.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:                d.ID,
		TaskID:            d.TaskID,
		SubmissionID:      d.SubmissionID,
		DisputantID:       d.DisputantID,
		ReviewerID:        d.ReviewerID,
		ArbitratorID:      d.ArbitratorID,
		Status:            string(d.Status),
		Tier:              string(d.Tier),
		Reason:            d.Reason,
		ResponseText:      d.ResponseText,
		ResponseLinks:     d.ResponseLinks,
		EvidenceFiles:     d.EvidenceFiles,
		ResolutionNotes:   d.ResolutionNotes,
		NewQualityScore:   d.NewQualityScore,
		ResponseDeadline:  rfc3339(d.ResponseDeadline),
		MediationDeadline: rfc3339(d.MediationDeadline),
		AppealDeadline:    rfc3339(d.AppealDeadline),
		ResolvedAt:        rfc3339(d.ResolvedAt),
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
	}
	if d.Resolution != nil {
		res := string(*d.Resolution)
		resp.Resolution = &res
	}
	return resp
}

type commentResponse struct {
	ID         string `json:"id"`
	DisputeID  string `json:"disputeId"`
	UserID     string `json:"userId"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
	CreatedAt  string `json:"createdAt"`
}

func toCommentResponse(c dispute.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		DisputeID:  c.DisputeID,
		UserID:     c.UserID,
		Kind:       string(c.Kind),
		Content:    c.Content,
		Visibility: string(c.Visibility),
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListDisputes(w, r)
	case http.MethodPost:
		s.handleCreateDispute(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	status := dispute.Status(r.URL.Query().Get("status"))

	disputes, err := s.disputeService.List(r.Context(), actor, status)
	if err != nil {
		writeDisputeError(w, "list disputes", err)
		return
	}
	items := make([]disputeResponse, 0, len(disputes))
	for _, d := range disputes {
		items = append(items, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []disputeResponse `json:"items"`
		Total int               `json:"total"`
	}{Items: items, Total: len(items)})
}

type createDisputeRequest struct {
	TaskID        string   `json:"taskId"`
	SubmissionID  string   `json:"submissionId"`
	ReviewerID    string   `json:"reviewerId"`
	Reason        string   `json:"reason"`
	EvidenceFiles []string `json:"evidenceFiles"`
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	var req createDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.disputeService.Create(r.Context(), dispute.CreateParams{
		TaskID:        req.TaskID,
		SubmissionID:  req.SubmissionID,
		DisputantID:   actor.UserID,
		ReviewerID:    req.ReviewerID,
		Reason:        req.Reason,
		EvidenceFiles: req.EvidenceFiles,
	})
	if err != nil {
		writeDisputeError(w, "create dispute", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

// handleDisputeDetail dispatches /api/disputes/{id} and its sub-resources.
func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/disputes/")
	parts := strings.SplitN(rest, "/", 2)
	disputeID := parts[0]
	if disputeID == "" {
		writeJSONError(w, http.StatusBadRequest, "dispute id required")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleGetDispute(w, r, disputeID)
		return
	}

	switch parts[1] {
	case "comments":
		s.handleComments(w, r, disputeID)
	case "respond":
		s.handleRespond(w, r, disputeID)
	case "assign":
		s.handleAction(w, r, disputeID, s.disputeService.Assign)
	case "recuse":
		s.handleAction(w, r, disputeID, s.disputeService.Recuse)
	case "appeal":
		s.handleAction(w, r, disputeID, s.disputeService.Appeal)
	case "withdraw":
		s.handleAction(w, r, disputeID, s.disputeService.Withdraw)
	case "resolve":
		s.handleResolve(w, r, disputeID)
	case "mediate":
		s.handleMediate(w, r, disputeID)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request, disputeID string) {
	actor := actorFromContext(r.Context())

	proj, err := s.disputeService.Get(r.Context(), disputeID, actor)
	if err != nil {
		writeDisputeError(w, "get dispute", err)
		return
	}
	resp := toDisputeResponse(proj.Dispute)
	resp.Redacted = proj.Redacted
	resp.EvidenceURLs = proj.EvidenceURLs
	writeJSON(w, http.StatusOK, resp)
}

type respondRequest struct {
	ResponseText  string   `json:"responseText"`
	ResponseLinks []string `json:"responseLinks"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.disputeService.Respond(r.Context(), dispute.RespondParams{
		DisputeID:     disputeID,
		Actor:         actorFromContext(r.Context()),
		ResponseText:  req.ResponseText,
		ResponseLinks: req.ResponseLinks,
	})
	if err != nil {
		writeDisputeError(w, "respond", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

// handleAction serves the bodyless POST transitions: assign, recuse, appeal,
// withdraw.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, disputeID string, op func(context.Context, string, dispute.Actor) (dispute.Dispute, error)) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, err := op(r.Context(), disputeID, actorFromContext(r.Context()))
	if err != nil {
		writeDisputeError(w, "transition", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type resolveRequest struct {
	Resolution      string `json:"resolution"`
	Notes           string `json:"notes"`
	NewQualityScore *int   `json:"newQualityScore"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.disputeService.Resolve(r.Context(), dispute.ResolveParams{
		DisputeID:       disputeID,
		Actor:           actorFromContext(r.Context()),
		Resolution:      dispute.Resolution(req.Resolution),
		Notes:           req.Notes,
		NewQualityScore: req.NewQualityScore,
	})
	if err != nil {
		writeDisputeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type mediateRequest struct {
	AgreedOutcome string `json:"agreedOutcome"`
}

func (s *Server) handleMediate(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.disputeService.Mediate(r.Context(), dispute.MediateParams{
		DisputeID:     disputeID,
		Actor:         actorFromContext(r.Context()),
		AgreedOutcome: req.AgreedOutcome,
	})
	if err != nil {
		writeDisputeError(w, "mediate", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type addCommentRequest struct {
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request, disputeID string) {
	actor := actorFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		comments, err := s.disputeService.ListComments(r.Context(), disputeID, actor)
		if err != nil {
			writeDisputeError(w, "list comments", err)
			return
		}
		items := make([]commentResponse, 0, len(comments))
		for _, c := range comments {
			items = append(items, toCommentResponse(c))
		}
		writeJSON(w, http.StatusOK, struct {
			Items []commentResponse `json:"items"`
		}{Items: items})
	case http.MethodPost:
		var req addCommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		c, err := s.disputeService.AddComment(r.Context(), dispute.CommentParams{
			DisputeID:  disputeID,
			Actor:      actor,
			Content:    req.Content,
			Visibility: dispute.Visibility(req.Visibility),
		})
		if err != nil {
			writeDisputeError(w, "add comment", err)
			return
		}
		writeJSON(w, http.StatusCreated, toCommentResponse(c))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type arbitratorResponse struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Role         string `json:"role"`
	Points       int64  `json:"points"`
	OpenCaseload int    `json:"openCaseload"`
	CreatedAt    string `json:"createdAt"`
}

func toArbitratorResponse(p roster.Profile) arbitratorResponse {
	return arbitratorResponse{
		ID:           p.ID,
		FullName:     p.FullName,
		Role:         p.Role,
		Points:       p.Points,
		OpenCaseload: p.OpenCaseload,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListArbitrators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	profiles, err := s.rosterService.List(r.Context(), limit)
	if err != nil {
		internalError(w, "list arbitrators", err)
		return
	}
	items := make([]arbitratorResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toArbitratorResponse(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []arbitratorResponse `json:"items"`
	}{Items: items})
}

func (s *Server) handleGetArbitrator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/arbitrators/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "arbitrator id required")
		return
	}
	profile, err := s.rosterService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "arbitrator not found")
			return
		}
		internalError(w, "get arbitrator", err)
		return
	}
	writeJSON(w, http.StatusOK, toArbitratorResponse(profile))
}

// handleEvidenceDownload serves evidence files addressed by signed URLs. The
// token itself is the authorization; no session is required.
func (s *Server) handleEvidenceDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requested := r.URL.Query().Get("path")
	token := r.URL.Query().Get("token")
	if requested == "" || token == "" {
		writeJSONError(w, http.StatusBadRequest, "path and token required")
		return
	}
	granted, err := s.evidenceSigner.Verify(token)
	if err != nil {
		if errors.Is(err, evidence.ErrExpiredToken) {
			writeJSONError(w, http.StatusForbidden, "download link expired")
			return
		}
		writeJSONError(w, http.StatusForbidden, "invalid download token")
		return
	}
	if granted != requested {
		writeJSONError(w, http.StatusForbidden, "token does not grant this path")
		return
	}
	clean := filepath.Clean("/" + granted)
	http.ServeFile(w, r, filepath.Join(s.evidenceDir, clean))
}

// writeDisputeError maps the engine's error taxonomy onto HTTP statuses.
func writeDisputeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dispute.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, dispute.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dispute.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispute.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispute.ErrInvalidState), errors.Is(err, dispute.ErrConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispute.ErrDeadlineExpired):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dispute.ErrDependency):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		internalError(w, op, err)
	}
}

func internalError(w http.ResponseWriter, op string, err error) {
	log.Printf("api: %s: %v", op, err)
	writeJSONError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
