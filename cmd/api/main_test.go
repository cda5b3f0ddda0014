package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meritflow/auth"
	"meritflow/dispute"
	"meritflow/evidence"
	"meritflow/roster"
)

type stubDisputeService struct {
	d           dispute.Dispute
	proj        dispute.Projection
	list        []dispute.Dispute
	comment     dispute.Comment
	comments    []dispute.Comment
	err         error
	lastAction  string
	lastActorID string
}

func (s *stubDisputeService) Create(_ context.Context, params dispute.CreateParams) (dispute.Dispute, error) {
	s.lastAction = "create"
	s.lastActorID = params.DisputantID
	return s.d, s.err
}

func (s *stubDisputeService) Get(_ context.Context, _ string, actor dispute.Actor) (dispute.Projection, error) {
	s.lastAction = "get"
	s.lastActorID = actor.UserID
	return s.proj, s.err
}

func (s *stubDisputeService) List(_ context.Context, actor dispute.Actor, _ dispute.Status) ([]dispute.Dispute, error) {
	s.lastAction = "list"
	s.lastActorID = actor.UserID
	return s.list, s.err
}

func (s *stubDisputeService) Respond(_ context.Context, params dispute.RespondParams) (dispute.Dispute, error) {
	s.lastAction = "respond"
	s.lastActorID = params.Actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Assign(_ context.Context, _ string, actor dispute.Actor) (dispute.Dispute, error) {
	s.lastAction = "assign"
	s.lastActorID = actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Recuse(_ context.Context, _ string, actor dispute.Actor) (dispute.Dispute, error) {
	s.lastAction = "recuse"
	s.lastActorID = actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Resolve(_ context.Context, params dispute.ResolveParams) (dispute.Dispute, error) {
	s.lastAction = "resolve"
	s.lastActorID = params.Actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Appeal(_ context.Context, _ string, actor dispute.Actor) (dispute.Dispute, error) {
	s.lastAction = "appeal"
	s.lastActorID = actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Withdraw(_ context.Context, _ string, actor dispute.Actor) (dispute.Dispute, error) {
	s.lastAction = "withdraw"
	s.lastActorID = actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) Mediate(_ context.Context, params dispute.MediateParams) (dispute.Dispute, error) {
	s.lastAction = "mediate"
	s.lastActorID = params.Actor.UserID
	return s.d, s.err
}

func (s *stubDisputeService) AddComment(_ context.Context, params dispute.CommentParams) (dispute.Comment, error) {
	s.lastAction = "addComment"
	s.lastActorID = params.Actor.UserID
	return s.comment, s.err
}

func (s *stubDisputeService) ListComments(_ context.Context, _ string, actor dispute.Actor) ([]dispute.Comment, error) {
	s.lastAction = "listComments"
	s.lastActorID = actor.UserID
	return s.comments, s.err
}

type stubAuthService struct {
	user   auth.User
	result auth.LoginResult
	userID string
	role   auth.Role
	err    error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := s.user
	return &u, nil
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.result, s.err
}

func (s *stubAuthService) VerifyToken(_ string) (string, auth.Role, error) {
	return s.userID, s.role, s.err
}

func authedRequest(req *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return req.WithContext(ctx)
}

func sampleDispute() dispute.Dispute {
	return dispute.Dispute{
		ID:           "d1",
		TaskID:       "t1",
		SubmissionID: "s1",
		DisputantID:  "u1",
		ReviewerID:   "u2",
		Status:       dispute.StatusOpen,
		Tier:         dispute.TierMediation,
		Reason:       "score too low",
		CreatedAt:    time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleCreateDispute_Success(t *testing.T) {
	stub := &stubDisputeService{d: sampleDispute()}
	server := &Server{disputeService: stub}

	body := strings.NewReader(`{"taskId":"t1","submissionId":"s1","reviewerId":"u2","reason":"score too low"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/disputes", body)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputes(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if stub.lastActorID != "u1" {
		t.Fatalf("expected disputant taken from token, got %q", stub.lastActorID)
	}

	var resp disputeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "d1" || resp.Status != "open" || resp.Tier != "mediation" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleListDisputes_Success(t *testing.T) {
	server := &Server{disputeService: &stubDisputeService{list: []dispute.Dispute{sampleDispute()}}}

	req := httptest.NewRequest(http.MethodGet, "/api/disputes", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []disputeResponse `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 1 || payload.Items[0].ID != "d1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleGetDispute_Redacted(t *testing.T) {
	server := &Server{disputeService: &stubDisputeService{
		proj: dispute.Projection{Dispute: sampleDispute(), Redacted: true},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/disputes/d1", nil)
	req = authedRequest(req, "outsider", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp disputeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Redacted {
		t.Fatal("expected redacted flag in payload")
	}
}

func TestHandleDisputeDetail_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{dispute.ErrUnauthenticated, http.StatusUnauthorized},
		{dispute.ErrForbidden, http.StatusForbidden},
		{dispute.ErrNotFound, http.StatusNotFound},
		{dispute.ErrValidation, http.StatusBadRequest},
		{dispute.ErrInvalidState, http.StatusConflict},
		{dispute.ErrConflict, http.StatusConflict},
		{dispute.ErrDeadlineExpired, http.StatusUnprocessableEntity},
		{dispute.ErrDependency, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		server := &Server{disputeService: &stubDisputeService{err: tc.err}}
		req := httptest.NewRequest(http.MethodPost, "/api/disputes/d1/assign", nil)
		req = authedRequest(req, "u3", auth.RoleCouncil)
		rec := httptest.NewRecorder()

		server.handleDisputeDetail(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestHandleDisputeDetail_RoutesActions(t *testing.T) {
	for _, action := range []string{"respond", "assign", "recuse", "resolve", "appeal", "withdraw", "mediate"} {
		stub := &stubDisputeService{d: sampleDispute()}
		server := &Server{disputeService: stub}

		req := httptest.NewRequest(http.MethodPost, "/api/disputes/d1/"+action, strings.NewReader(`{}`))
		req = authedRequest(req, "u3", auth.RoleCouncil)
		rec := httptest.NewRecorder()

		server.handleDisputeDetail(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", action, rec.Code)
		}
		if stub.lastAction != action {
			t.Fatalf("%s: routed to %s", action, stub.lastAction)
		}
		if stub.lastActorID != "u3" {
			t.Fatalf("%s: actor not taken from token", action)
		}
	}
}

func TestHandleDisputeDetail_UnknownResource(t *testing.T) {
	server := &Server{disputeService: &stubDisputeService{}}

	req := httptest.NewRequest(http.MethodPost, "/api/disputes/d1/escalate", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleDisputeDetail_WrongMethod(t *testing.T) {
	server := &Server{disputeService: &stubDisputeService{}}

	req := httptest.NewRequest(http.MethodDelete, "/api/disputes/d1", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleComments_RoundTrip(t *testing.T) {
	stub := &stubDisputeService{
		comment:  dispute.Comment{ID: "c1", DisputeID: "d1", UserID: "u1", Kind: dispute.CommentDiscussion, Content: "hello", Visibility: dispute.VisibilityParties},
		comments: []dispute.Comment{{ID: "c1", DisputeID: "d1", UserID: "u1", Kind: dispute.CommentDiscussion, Content: "hello", Visibility: dispute.VisibilityParties}},
	}
	server := &Server{disputeService: stub}

	req := httptest.NewRequest(http.MethodPost, "/api/disputes/d1/comments", strings.NewReader(`{"content":"hello"}`))
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/disputes/d1/comments", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec = httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []commentResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "c1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWithAuth_RejectsMissingToken(t *testing.T) {
	server := &Server{
		authService:    &stubAuthService{},
		disputeService: &stubDisputeService{},
	}
	handler := server.withAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/disputes", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWithAuth_RejectsBadToken(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{err: errors.New("bad token")},
	}
	handler := server.withAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/disputes", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWithAuth_PopulatesActor(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{userID: "u9", role: auth.RoleCouncil},
	}
	var got dispute.Actor
	handler := server.withAuth(func(w http.ResponseWriter, r *http.Request) {
		got = actorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/disputes", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if got.UserID != "u9" || got.Role != dispute.RoleCouncil {
		t.Fatalf("unexpected actor: %+v", got)
	}
}

type stubRosterService struct {
	profiles []roster.Profile
	err      error
}

func (s *stubRosterService) GetByID(ctx context.Context, id string) (roster.Profile, error) {
	if s.err != nil {
		return roster.Profile{}, s.err
	}
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return roster.Profile{}, roster.ErrNotFound
}

func (s *stubRosterService) List(ctx context.Context, limit int) ([]roster.Profile, error) {
	return s.profiles, s.err
}

func TestHandleArbitrators(t *testing.T) {
	profile := roster.Profile{
		ID:           "u3",
		FullName:     "Casey Arbiter",
		Role:         "council",
		Points:       120,
		OpenCaseload: 2,
		CreatedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	server := &Server{rosterService: &stubRosterService{profiles: []roster.Profile{profile}}}

	req := httptest.NewRequest(http.MethodGet, "/api/arbitrators", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec := httptest.NewRecorder()
	server.handleListArbitrators(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Items []arbitratorResponse `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].OpenCaseload != 2 {
		t.Fatalf("unexpected items: %+v", listed.Items)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/arbitrators/u3", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec = httptest.NewRecorder()
	server.handleGetArbitrator(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/arbitrators/missing", nil)
	req = authedRequest(req, "u1", auth.RoleMember)
	rec = httptest.NewRecorder()
	server.handleGetArbitrator(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", rec.Code)
	}
}

func TestHandleEvidenceDownload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shot.png"), []byte("pixels"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	signer := evidence.NewSigner("http://localhost:8080/files", "secret")
	server := (&Server{}).WithEvidenceDownloads(signer, dir)

	signed, err := signer.SignURL("shot.png", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	token := parsed.Query().Get("token")

	req := httptest.NewRequest(http.MethodGet, signed, nil)
	rec := httptest.NewRecorder()
	server.handleEvidenceDownload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "pixels" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}

	// A token for one path must not fetch another.
	req = httptest.NewRequest(http.MethodGet, "/files?path=other.png&token="+url.QueryEscape(token), nil)
	rec = httptest.NewRecorder()
	server.handleEvidenceDownload(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched path, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/files?path=shot.png&token=garbage", nil)
	rec = httptest.NewRecorder()
	server.handleEvidenceDownload(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad token, got %d", rec.Code)
	}
}
