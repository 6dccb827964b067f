// Package eligibility decides with an OPA policy which actors of a scene
// take part in navigation. Actors restrict themselves through attributes
// (world, level, minDifficulty, disabled), the policy compares them with
// the context of the race.
package eligibility

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/scene"
)

var ErrPolicy = errors.New("invalid eligibility policy")

const defaultQuery = "data.racenav.eligibility.allow"

//go:embed policy.rego
var policy []byte

//go:embed data.json
var data []byte

// Context describes the race the actors are evaluated for.
type Context struct {
	World      string `json:"world,omitempty"`
	Level      string `json:"level,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type evalRequest struct {
	Actor   evalActor `json:"actor"`
	Context Context   `json:"context"`
}

type evalActor struct {
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
}

type Policy struct {
	query   rego.PreparedEvalQuery
	context Context
	module  []byte
	data    []byte
	l       *log.Logger
}

// check interface compliance
var _ scene.Filter = (*Policy)(nil)

type Option func(*Policy)

func WithContext(c Context) Option {
	return func(p *Policy) {
		p.context = c
	}
}

// WithModule replaces the embedded policy. The module must define
// data.racenav.eligibility.allow.
func WithModule(module []byte) Option {
	return func(p *Policy) {
		p.module = module
	}
}

// WithData replaces the embedded policy data (JSON).
func WithData(d []byte) Option {
	return func(p *Policy) {
		p.data = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Policy) {
		p.l = l
	}
}

func New(ctx context.Context, opts ...Option) (*Policy, error) {
	p := &Policy{
		module: policy,
		data:   data,
		l:      log.Default().Named("eligibility"),
	}
	for _, opt := range opts {
		opt(p)
	}
	store := inmem.NewFromReader(bytes.NewReader(p.data))
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module("racenav.eligibility", string(p.module)),
		rego.Store(store),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		p.l.Error("failed to prepare query", log.ErrorField(err))
		return nil, fmt.Errorf("%w: %w", ErrPolicy, err)
	}
	p.query = query
	return p, nil
}

// Evaluate runs the policy for actor a.
func (p *Policy) Evaluate(ctx context.Context, a *scene.Actor) (bool, error) {
	attrs := a.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	req := evalRequest{
		Actor:   evalActor{Name: a.Name, Attributes: attrs},
		Context: p.context,
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(req))
	if err != nil {
		return false, err
	}
	return rs.Allowed(), nil
}

// Eligible implements scene.Filter. Evaluation errors exclude the actor.
func (p *Policy) Eligible(a *scene.Actor) bool {
	ok, err := p.Evaluate(context.Background(), a)
	if err != nil {
		p.l.Error("eligibility", log.String("actor", a.Name), log.ErrorField(err))
		return false
	}
	p.l.Debug("eligibility",
		log.String("actor", a.Name),
		log.Bool("eligible", ok))
	return ok
}
