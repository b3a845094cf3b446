// Package decisioning provides composable acceptance predicates for
// release candidates and the pipeline that runs them in order.
package decisioning

import (
	"context"
	"time"

	"github.com/cinephage/cinephage/internal/scoring"
)

// RejectionReason identifies why a specification rejected an item or
// release. The values are stable and recorded in monitoring history.
type RejectionReason string

const (
	ReasonNoProfile           RejectionReason = "NO_PROFILE"
	ReasonUpgradesNotAllowed  RejectionReason = "UPGRADES_NOT_ALLOWED"
	ReasonQualityNotBetter    RejectionReason = "QUALITY_NOT_BETTER"
	ReasonImprovementTooSmall RejectionReason = "IMPROVEMENT_TOO_SMALL"
	ReasonAlreadyAtCutoff     RejectionReason = "ALREADY_AT_CUTOFF"
	ReasonNotMonitored        RejectionReason = "NOT_MONITORED"
	ReasonBlocklisted         RejectionReason = "BLOCKLISTED"
	ReasonCooldownActive      RejectionReason = "COOLDOWN_ACTIVE"
	ReasonBelowMinScore       RejectionReason = "BELOW_MIN_SCORE"
	ReasonSizeRejected        RejectionReason = "SIZE_REJECTED"
	ReasonProtocolNotAllowed  RejectionReason = "PROTOCOL_NOT_ALLOWED"
	ReasonNoExistingFile      RejectionReason = "NO_EXISTING_FILE"
	ReasonNoReleaseCandidate  RejectionReason = "NO_RELEASE_CANDIDATE"
)

// Decision is the outcome of one specification.
type Decision struct {
	Accepted bool            `json:"accepted"`
	Reason   RejectionReason `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Accept returns an accepting decision.
func Accept() Decision {
	return Decision{Accepted: true}
}

// Reject returns a rejecting decision with a stable reason.
func Reject(reason RejectionReason, message string) Decision {
	return Decision{Accepted: false, Reason: reason, Message: message}
}

// Item is the library item under consideration. TV items carry the full
// monitored cascade so specs can enforce it without store access.
type Item struct {
	MediaType scoring.MediaType

	MovieID       int64
	SeriesID      int64
	EpisodeIDs    []int64
	SeasonNumber  int
	EpisodeNumber int

	Title  string
	Year   int
	TmdbID int64
	ImdbID string

	ProfileID int64

	Monitored       bool
	SeriesMonitored bool
	SeasonMonitored bool

	HasFile       bool
	ExistingTitle string
	ExistingScore int

	AirDate *time.Time
}

// Candidate is a release under consideration, after scoring.
type Candidate struct {
	Title       string
	InfoHash    string
	DownloadURL string
	IndexerID   int64
	IndexerName string
	Protocol    scoring.Protocol
	Size        int64
	PublishDate time.Time
	Score       scoring.Result
}

// EvalContext bundles everything a specification may inspect. Release is
// nil for item-level specs that run before any search.
type EvalContext struct {
	// Ctx is the request context, propagated into store-backed checks.
	Ctx     context.Context
	Item    Item
	Profile *scoring.Profile
	Release *Candidate
	Now     time.Time
}

// Clock returns the evaluation time, defaulting to the wall clock.
func (c *EvalContext) Clock() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Context returns the request context, defaulting to context.Background.
func (c *EvalContext) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Specification is a predicate over an evaluation context.
type Specification interface {
	Name() string
	IsSatisfied(ctx *EvalContext) Decision
}
