package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusOpen             Status = "open"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusUnderReview      Status = "under_review"
	StatusMediation        Status = "mediation"
	StatusMediated         Status = "mediated"
	StatusAppealed         Status = "appealed"
	StatusAppealReview     Status = "appeal_review"
	StatusResolved         Status = "resolved"
	StatusDismissed        Status = "dismissed"
	StatusWithdrawn        Status = "withdrawn"
)

// Terminal reports whether the status ends the dispute lifecycle. A resolved
// or dismissed dispute can still be appealed while its appeal window is open;
// every other mutating action is rejected once a terminal status is reached.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusDismissed, StatusWithdrawn, StatusMediated:
		return true
	default:
		return false
	}
}

// Tier is the escalation level of a dispute. It only moves upward, except
// when a mediation proposal pulls the dispute back to the mediation tier.
type Tier string

const (
	TierMediation Tier = "mediation"
	TierCouncil   Tier = "council"
	TierAdmin     Tier = "admin"
)

// Resolution is the arbitrator's verdict on a terminally resolved dispute.
type Resolution string

const (
	ResolutionUpheld     Resolution = "upheld"
	ResolutionOverturned Resolution = "overturned"
	ResolutionCompromise Resolution = "compromise"
	ResolutionDismissed  Resolution = "dismissed"
)

func validResolution(r Resolution) bool {
	switch r {
	case ResolutionUpheld, ResolutionOverturned, ResolutionCompromise, ResolutionDismissed:
		return true
	default:
		return false
	}
}

// Dispute mirrors the disputes table.
type Dispute struct {
	ID            string
	TaskID        string
	SubmissionID  string
	DisputantID   string
	ReviewerID    string
	ArbitratorID  *string
	Status        Status
	Tier          Tier
	Reason        string
	ResponseText  *string
	ResponseLinks []string
	EvidenceFiles []string

	ResponseSubmittedAt *time.Time
	ResponseDeadline    *time.Time
	MediationDeadline   *time.Time
	AppealDeadline      *time.Time
	ResolvedAt          *time.Time

	Resolution      *Resolution
	ResolutionNotes *string
	NewQualityScore *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsParty reports whether the user is the disputant, reviewer, or the
// currently assigned arbitrator.
func (d Dispute) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == d.DisputantID || userID == d.ReviewerID {
		return true
	}
	return d.ArbitratorID != nil && *d.ArbitratorID == userID
}

// CommentKind distinguishes free-text discussion from the mediation
// protocol's ledger entries.
type CommentKind string

const (
	CommentDiscussion            CommentKind = "discussion"
	CommentMediationProposal     CommentKind = "mediation_proposal"
	CommentMediationConfirmation CommentKind = "mediation_confirmation"
)

// Visibility scopes who may read a comment.
type Visibility string

const (
	VisibilityParties    Visibility = "parties_only"
	VisibilityArbitrator Visibility = "arbitrator"
)

// Comment mirrors the dispute_comments table. Rows are immutable once written.
type Comment struct {
	ID         string
	DisputeID  string
	UserID     string
	Kind       CommentKind
	Content    string
	Visibility Visibility
	CreatedAt  time.Time
}

// Config carries the per-organization dispute policy windows. It is resolved
// by the policy store and passed into operations explicitly; the engine keeps
// no cached copy.
type Config struct {
	AppealWindow    time.Duration
	ResponseWindow  time.Duration
	MediationWindow time.Duration
}

const (
	defaultAppealWindow    = 48 * time.Hour
	defaultResponseWindow  = 72 * time.Hour
	defaultMediationWindow = 120 * time.Hour
)

// DefaultConfig returns the windows applied when an organization has no
// stored policy.
func DefaultConfig() Config {
	return Config{
		AppealWindow:    defaultAppealWindow,
		ResponseWindow:  defaultResponseWindow,
		MediationWindow: defaultMediationWindow,
	}
}

// WithDefaults fills any zero window from the defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.AppealWindow <= 0 {
		c.AppealWindow = d.AppealWindow
	}
	if c.ResponseWindow <= 0 {
		c.ResponseWindow = d.ResponseWindow
	}
	if c.MediationWindow <= 0 {
		c.MediationWindow = d.MediationWindow
	}
	return c
}
