package dispute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"meritflow/submission"
)

// Store is the persistence contract of the engine. Every status-mutating
// method receives the status the caller observed when the request began;
// implementations commit only if the stored status still matches and report
// ErrConflict otherwise. This compare-and-swap is the engine's race-safety
// mechanism: the loser of a concurrent transition fails cleanly instead of
// corrupting state.
type Store interface {
	Get(ctx context.Context, id string) (Dispute, error)
	List(ctx context.Context, f ListFilter) ([]Dispute, error)
	Create(ctx context.Context, d Dispute) (Dispute, error)

	SubmitResponse(ctx context.Context, id string, expect Status, upd ResponseUpdate) (Dispute, error)
	AssignArbitrator(ctx context.Context, id string, expect Status, arbitratorID string, next Status, tier Tier) (Dispute, error)
	ClearArbitrator(ctx context.Context, id string, expect Status, next Status) (Dispute, error)
	ResolveAndSettle(ctx context.Context, id string, expect Status, upd ResolveUpdate, settle *Settlement) (Dispute, error)
	MarkAppealed(ctx context.Context, id string, expect Status, appealDeadline time.Time) (Dispute, error)
	MarkWithdrawn(ctx context.Context, id string, expect Status) (Dispute, error)
	ProposeMediation(ctx context.Context, id string, expect Status, proposal Comment) (Dispute, error)
	AcceptMediation(ctx context.Context, id string, expect Status, notes string, resolvedAt time.Time) (Dispute, error)

	AppendComment(ctx context.Context, c Comment) (Comment, error)
	LatestProposal(ctx context.Context, disputeID string) (*Comment, error)
	ListComments(ctx context.Context, disputeID string) ([]Comment, error)
}

// ResponseUpdate carries the reviewer-response fields of a Respond commit.
type ResponseUpdate struct {
	Text        string
	Links       []string
	SubmittedAt time.Time
	Next        Status
	Tier        Tier
}

// ResolveUpdate carries the terminal fields of a Resolve commit.
type ResolveUpdate struct {
	Resolution      Resolution
	Notes           string
	NewQualityScore *int
	ResolvedAt      time.Time
	Next            Status
}

// ListFilter scopes dispute listings.
type ListFilter struct {
	// PartyID restricts to disputes the user participates in.
	PartyID string
	Status  Status
}

// SubmissionReader is the slice of the submission ledger the engine consumes.
type SubmissionReader interface {
	Get(ctx context.Context, id string) (submission.Submission, error)
}

// SprintWindows reads the sprint-level dispute window gating reviewer
// responses.
type SprintWindows interface {
	DisputeWindowEndsAt(ctx context.Context, taskID string) (*time.Time, error)
}

// ConfigSource resolves the organization's dispute policy. Implementations
// own any caching; the engine re-reads per operation.
type ConfigSource interface {
	Load(ctx context.Context) (Config, error)
}

// EvidenceSigner mints time-limited download URLs for stored evidence paths.
type EvidenceSigner interface {
	SignURL(path string, ttl time.Duration) (string, error)
}

// Service is the dispute transition engine.
type Service struct {
	store       Store
	submissions SubmissionReader
	sprints     SprintWindows
	config      ConfigSource
	signer      EvidenceSigner
	evidenceTTL time.Duration
	now         func() time.Time
	idGen       func() string
}

func NewService(store Store, submissions SubmissionReader, sprints SprintWindows, config ConfigSource) *Service {
	return &Service{
		store:       store,
		submissions: submissions,
		sprints:     sprints,
		config:      config,
		evidenceTTL: 15 * time.Minute,
		now:         time.Now,
		idGen:       func() string { return uuid.NewString() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithEvidenceSigner(signer EvidenceSigner, ttl time.Duration) *Service {
	s.signer = signer
	if ttl > 0 {
		s.evidenceTTL = ttl
	}
	return s
}

func (s *Service) loadConfig(ctx context.Context) Config {
	if s.config == nil {
		return DefaultConfig()
	}
	cfg, err := s.config.Load(ctx)
	if err != nil {
		log.Printf("dispute: load policy: %v; using defaults", err)
		return DefaultConfig()
	}
	return cfg.WithDefaults()
}

// CreateParams captures the intake payload for a new dispute.
type CreateParams struct {
	TaskID        string
	SubmissionID  string
	DisputantID   string
	ReviewerID    string
	Reason        string
	EvidenceFiles []string
}

// Create opens a dispute in status open, tier mediation. Response and
// mediation deadlines are stamped from the organization's policy windows.
// A submission admits at most one dispute per lifecycle.
func (s *Service) Create(ctx context.Context, params CreateParams) (Dispute, error) {
	if params.TaskID == "" || params.SubmissionID == "" {
		return Dispute{}, fmt.Errorf("%w: task and submission ids required", ErrValidation)
	}
	if params.DisputantID == "" || params.ReviewerID == "" {
		return Dispute{}, fmt.Errorf("%w: disputant and reviewer ids required", ErrValidation)
	}
	if params.DisputantID == params.ReviewerID {
		return Dispute{}, fmt.Errorf("%w: disputant and reviewer must differ", ErrValidation)
	}
	if strings.TrimSpace(params.Reason) == "" {
		return Dispute{}, fmt.Errorf("%w: reason required", ErrValidation)
	}

	cfg := s.loadConfig(ctx)
	now := s.now().UTC()
	responseBy := now.Add(cfg.ResponseWindow)
	mediationBy := now.Add(cfg.MediationWindow)

	d := Dispute{
		ID:                s.idGen(),
		TaskID:            params.TaskID,
		SubmissionID:      params.SubmissionID,
		DisputantID:       params.DisputantID,
		ReviewerID:        params.ReviewerID,
		Status:            StatusOpen,
		Tier:              TierMediation,
		Reason:            strings.TrimSpace(params.Reason),
		EvidenceFiles:     params.EvidenceFiles,
		ResponseDeadline:  &responseBy,
		MediationDeadline: &mediationBy,
		CreatedAt:         now,
	}

	return s.store.Create(ctx, d)
}

// Projection is the viewer-dependent read model of a dispute. Non-parties
// without council or admin role receive the redacted form: status, tier,
// reason, resolution, and timestamps, with evidence and response content
// stripped.
type Projection struct {
	Dispute      Dispute
	Redacted     bool
	EvidenceURLs map[string]string
}

// Get returns the dispute as seen by the viewer.
func (s *Service) Get(ctx context.Context, disputeID string, actor Actor) (Projection, error) {
	if actor.UserID == "" {
		return Projection{}, ErrUnauthenticated
	}
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return Projection{}, err
	}

	if !CanViewFull(d, actor) {
		return Projection{Dispute: redact(d), Redacted: true}, nil
	}

	proj := Projection{Dispute: d}
	if s.signer != nil && len(d.EvidenceFiles) > 0 {
		proj.EvidenceURLs = make(map[string]string, len(d.EvidenceFiles))
		for _, path := range d.EvidenceFiles {
			url, err := s.signer.SignURL(path, s.evidenceTTL)
			if err != nil {
				// Signing failures are non-fatal; the file is simply
				// omitted from the response.
				log.Printf("dispute: sign evidence %s: %v", path, err)
				continue
			}
			proj.EvidenceURLs[path] = url
		}
	}
	return proj, nil
}

func redact(d Dispute) Dispute {
	d.ResponseText = nil
	d.ResponseLinks = nil
	d.EvidenceFiles = nil
	d.ResolutionNotes = nil
	d.NewQualityScore = nil
	return d
}

// List returns disputes visible to the actor: council and admin see all,
// everyone else only disputes they are a party to.
func (s *Service) List(ctx context.Context, actor Actor, status Status) ([]Dispute, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	f := ListFilter{Status: status}
	if actor.Role != RoleAdmin && actor.Role != RoleCouncil {
		f.PartyID = actor.UserID
	}
	return s.store.List(ctx, f)
}

// RespondParams captures the reviewer's defense of the disputed review.
type RespondParams struct {
	DisputeID     string
	Actor         Actor
	ResponseText  string
	ResponseLinks []string
}

// Respond records the reviewer's response and moves the dispute under review,
// promoting a mediation-tier dispute to council. Rejected once the response
// deadline or the owning sprint's dispute window has passed.
func (s *Service) Respond(ctx context.Context, params RespondParams) (Dispute, error) {
	d, err := s.store.Get(ctx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanRespond(d, params.Actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionRespond, d.Status); err != nil {
		return Dispute{}, err
	}
	if strings.TrimSpace(params.ResponseText) == "" {
		return Dispute{}, fmt.Errorf("%w: response text required", ErrValidation)
	}

	now := s.now().UTC()
	if DeadlinePast(d.ResponseDeadline, now) {
		return Dispute{}, fmt.Errorf("%w: response deadline has passed", ErrDeadlineExpired)
	}
	endsAt, err := s.sprints.DisputeWindowEndsAt(ctx, d.TaskID)
	if err != nil {
		return Dispute{}, fmt.Errorf("%w: read sprint window: %v", ErrDependency, err)
	}
	if WindowClosed(endsAt, now) {
		return Dispute{}, fmt.Errorf("%w: sprint dispute window has closed", ErrDeadlineExpired)
	}

	return s.store.SubmitResponse(ctx, d.ID, d.Status, ResponseUpdate{
		Text:        strings.TrimSpace(params.ResponseText),
		Links:       params.ResponseLinks,
		SubmittedAt: now,
		Next:        StatusUnderReview,
		Tier:        promoteTier(d.Tier),
	})
}

// Assign makes the caller the dispute's arbitrator. Exactly one of two
// concurrent assignments can win; the other observes ErrConflict.
func (s *Service) Assign(ctx context.Context, disputeID string, actor Actor) (Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanAssign(d, actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionAssign, d.Status); err != nil {
		return Dispute{}, err
	}
	if d.ArbitratorID != nil {
		return Dispute{}, fmt.Errorf("%w: arbitrator already assigned", ErrConflict)
	}

	return s.store.AssignArbitrator(ctx, d.ID, d.Status, actor.UserID, assignTarget(d.Status), promoteTier(d.Tier))
}

// Recuse removes the caller as arbitrator. A dispute that already holds a
// reviewer response stays under review; one without reopens. Appeal reviews
// revert to appealed.
func (s *Service) Recuse(ctx context.Context, disputeID string, actor Actor) (Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanRecuse(d, actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionRecuse, d.Status); err != nil {
		return Dispute{}, err
	}

	next := recuseTarget(d.Status, d.ResponseSubmittedAt != nil)
	return s.store.ClearArbitrator(ctx, d.ID, d.Status, next)
}

// ResolveParams captures the arbitrator's verdict.
type ResolveParams struct {
	DisputeID       string
	Actor           Actor
	Resolution      Resolution
	Notes           string
	NewQualityScore *int
}

// Resolve commits a terminal verdict and applies its settlement side effects
// in the same transaction: overturned and compromise rewrite the submission's
// review and credit the disputant; upheld and dismissed leave the original
// review standing.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Dispute, error) {
	d, err := s.store.Get(ctx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanResolve(d, params.Actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionResolve, d.Status); err != nil {
		return Dispute{}, err
	}
	if !validResolution(params.Resolution) {
		return Dispute{}, fmt.Errorf("%w: unknown resolution %q", ErrValidation, params.Resolution)
	}

	sub, err := s.submissions.Get(ctx, d.SubmissionID)
	if err != nil {
		if errors.Is(err, submission.ErrNotFound) {
			return Dispute{}, fmt.Errorf("%w: submission %s", ErrNotFound, d.SubmissionID)
		}
		return Dispute{}, fmt.Errorf("%w: read submission: %v", ErrDependency, err)
	}

	settle, err := Settle(params.Resolution, d, sub.BasePoints, params.NewQualityScore)
	if err != nil {
		return Dispute{}, err
	}

	now := s.now().UTC()
	upd := ResolveUpdate{
		Resolution:      params.Resolution,
		Notes:           strings.TrimSpace(params.Notes),
		NewQualityScore: params.NewQualityScore,
		ResolvedAt:      now,
		Next:            terminalStatus(params.Resolution),
	}
	if settle != nil {
		settle.CreditUserID = d.DisputantID
	}
	return s.store.ResolveAndSettle(ctx, d.ID, d.Status, upd, settle)
}

// Appeal escalates a resolved or dismissed dispute to the admin tier,
// clearing the previous arbitration outcome. Only available to the disputant
// within the policy's appeal window after resolution.
func (s *Service) Appeal(ctx context.Context, disputeID string, actor Actor) (Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanAppeal(d, actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionAppeal, d.Status); err != nil {
		return Dispute{}, err
	}

	cfg := s.loadConfig(ctx)
	now := s.now().UTC()
	if AppealWindowClosed(d.ResolvedAt, cfg.AppealWindow, now) {
		return Dispute{}, fmt.Errorf("%w: appeal window has closed", ErrDeadlineExpired)
	}

	return s.store.MarkAppealed(ctx, d.ID, d.Status, now.Add(cfg.AppealWindow))
}

// Withdraw lets the disputant abandon any non-terminal dispute.
func (s *Service) Withdraw(ctx context.Context, disputeID string, actor Actor) (Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	if err := CanWithdraw(d, actor); err != nil {
		return Dispute{}, err
	}
	if err := checkTransition(ActionWithdraw, d.Status); err != nil {
		return Dispute{}, err
	}

	return s.store.MarkWithdrawn(ctx, d.ID, d.Status)
}

// CommentParams captures a discussion entry.
type CommentParams struct {
	DisputeID  string
	Actor      Actor
	Content    string
	Visibility Visibility
}

// AddComment appends a discussion comment. Arbitrator-scoped comments may
// only be written by the assigned arbitrator or an admin.
func (s *Service) AddComment(ctx context.Context, params CommentParams) (Comment, error) {
	d, err := s.store.Get(ctx, params.DisputeID)
	if err != nil {
		return Comment{}, err
	}
	if err := CanComment(d, params.Actor); err != nil {
		return Comment{}, err
	}
	if err := checkTransition(ActionComment, d.Status); err != nil {
		return Comment{}, err
	}

	content := strings.TrimSpace(params.Content)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: comment content required", ErrValidation)
	}

	vis := params.Visibility
	if vis == "" {
		vis = VisibilityParties
	}
	switch vis {
	case VisibilityParties:
	case VisibilityArbitrator:
		isArbitrator := d.ArbitratorID != nil && *d.ArbitratorID == params.Actor.UserID
		if !isArbitrator && params.Actor.Role != RoleAdmin {
			return Comment{}, fmt.Errorf("%w: arbitrator-scoped comments require the arbitrator or an admin", ErrForbidden)
		}
	default:
		return Comment{}, fmt.Errorf("%w: unknown visibility %q", ErrValidation, vis)
	}

	return s.store.AppendComment(ctx, Comment{
		DisputeID:  d.ID,
		UserID:     params.Actor.UserID,
		Kind:       CommentDiscussion,
		Content:    content,
		Visibility: vis,
	})
}

// ListComments returns the comment ledger filtered for the viewer:
// arbitrator-scoped entries are hidden from everyone but the current
// arbitrator and admins.
func (s *Service) ListComments(ctx context.Context, disputeID string, actor Actor) ([]Comment, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if !CanViewFull(d, actor) {
		return nil, fmt.Errorf("%w: comments are visible to parties, council, and admins", ErrForbidden)
	}

	comments, err := s.store.ListComments(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	isArbitrator := d.ArbitratorID != nil && *d.ArbitratorID == actor.UserID
	visible := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.Visibility == VisibilityArbitrator && !isArbitrator && actor.Role != RoleAdmin {
			continue
		}
		visible = append(visible, c)
	}
	return visible, nil
}
