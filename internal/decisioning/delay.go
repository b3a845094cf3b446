package decisioning

import (
	"fmt"
	"sort"
	"time"

	"github.com/cinephage/cinephage/internal/release"
	"github.com/cinephage/cinephage/internal/scoring"
)

// DelayProfile configures how long a freshly found release waits before it
// is dispatched, giving better releases a chance to appear.
type DelayProfile struct {
	ID           int64
	Enabled      bool
	UsenetDelay  time.Duration
	TorrentDelay time.Duration
	// QualityDelays overrides the protocol delay per resolution.
	QualityDelays map[release.Resolution]time.Duration

	PreferredProtocol      scoring.Protocol
	BypassIfHighestQuality bool
	BypassIfAboveScore     *int
	SortOrder              int
}

// DelayDecision is the outcome of evaluating the delay rules for a release.
type DelayDecision struct {
	ShouldDelay bool
	ProcessAt   time.Time
	Reason      string
}

// EvaluateDelay computes whether a release should wait and until when.
// Bypass conditions short-circuit to an immediate grab.
func (p *DelayProfile) EvaluateDelay(candidate *Candidate, now time.Time) DelayDecision {
	if p == nil || !p.Enabled {
		return DelayDecision{}
	}

	if p.BypassIfHighestQuality && candidate.Score.Attributes.Resolution == release.Resolution2160p {
		return DelayDecision{Reason: "highest quality bypass"}
	}
	if p.BypassIfAboveScore != nil && candidate.Score.TotalScore >= *p.BypassIfAboveScore {
		return DelayDecision{Reason: fmt.Sprintf("score %d above bypass threshold %d",
			candidate.Score.TotalScore, *p.BypassIfAboveScore)}
	}
	if p.PreferredProtocol != "" && candidate.Protocol == p.PreferredProtocol {
		return DelayDecision{Reason: "preferred protocol bypass"}
	}

	var delay time.Duration
	switch candidate.Protocol {
	case scoring.ProtocolUsenet:
		delay = p.UsenetDelay
	default:
		delay = p.TorrentDelay
	}
	if override, ok := p.QualityDelays[candidate.Score.Attributes.Resolution]; ok {
		delay = override
	}

	if delay <= 0 {
		return DelayDecision{}
	}
	return DelayDecision{
		ShouldDelay: true,
		ProcessAt:   now.Add(delay),
		Reason:      fmt.Sprintf("%s delay of %s", candidate.Protocol, delay),
	}
}

// SelectDelayProfile picks the first enabled profile by sort order.
func SelectDelayProfile(profiles []*DelayProfile) *DelayProfile {
	enabled := make([]*DelayProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].SortOrder < enabled[j].SortOrder })
	return enabled[0]
}

// DelayProvider supplies the active delay profiles.
type DelayProvider interface {
	DelayProfiles(ctx *EvalContext) ([]*DelayProfile, error)
}

// DelaySpec accepts releases that need no delay; a delayed release is not
// an outright rejection, so callers that park releases in the pending
// queue should call Evaluate directly instead.
type DelaySpec struct {
	Provider DelayProvider
}

func (DelaySpec) Name() string { return "delay" }

// Evaluate returns the full delay decision for a candidate.
func (s DelaySpec) Evaluate(ctx *EvalContext) (DelayDecision, error) {
	if ctx.Release == nil {
		return DelayDecision{}, nil
	}
	profiles, err := s.Provider.DelayProfiles(ctx)
	if err != nil {
		return DelayDecision{}, err
	}
	profile := SelectDelayProfile(profiles)
	return profile.EvaluateDelay(ctx.Release, ctx.Clock()), nil
}

func (s DelaySpec) IsSatisfied(ctx *EvalContext) Decision {
	decision, err := s.Evaluate(ctx)
	if err != nil {
		return Accept() // a broken delay store never blocks grabbing
	}
	if decision.ShouldDelay {
		return Reject(ReasonNoReleaseCandidate, fmt.Sprintf(
			"delayed until %s", decision.ProcessAt.Format(time.RFC3339)))
	}
	return Accept()
}
