package decisioning

import (
	"github.com/rs/zerolog"
)

// Pipeline runs specifications in a fixed order. The first rejection
// short-circuits and is returned to the caller for history recording.
type Pipeline struct {
	specs  []Specification
	logger zerolog.Logger
}

// NewPipeline creates a pipeline over the given specs, run in order.
func NewPipeline(logger zerolog.Logger, specs ...Specification) *Pipeline {
	return &Pipeline{
		specs:  specs,
		logger: logger.With().Str("component", "decision-pipeline").Logger(),
	}
}

// Evaluate runs every spec against the context in order. Within one item
// the specs always run sequentially; an earlier rejection is observed
// before later ones.
func (p *Pipeline) Evaluate(ctx *EvalContext) Decision {
	for _, spec := range p.specs {
		decision := spec.IsSatisfied(ctx)
		if !decision.Accepted {
			p.logger.Debug().
				Str("spec", spec.Name()).
				Str("reason", string(decision.Reason)).
				Str("title", ctx.Item.Title).
				Str("message", decision.Message).
				Msg("Rejected")
			return decision
		}
	}
	return Accept()
}

// Specs returns the configured specifications in execution order.
func (p *Pipeline) Specs() []Specification {
	return p.specs
}
