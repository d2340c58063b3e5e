// Package pipeline runs normalization strategies in priority order and calls
// hooks around each attempt.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
	"github.com/Skryldev/inpaint-adapter/reencode"
)

// Pipeline tries a sequence of Strategies until one produces bytes.
type Pipeline struct {
	strategies []core.Strategy
	hooks      []core.Hook
	logger     core.Logger
}

// New returns an empty Pipeline.
func New() *Pipeline { return &Pipeline{logger: core.NopLogger{}} }

// Use appends strategies.  Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Strategy) *Pipeline {
	p.strategies = append(p.strategies, s...)
	return p
}

// AddHook registers an observer.
func (p *Pipeline) AddHook(h core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// SetLogger attaches a logger used for fallback warnings.
func (p *Pipeline) SetLogger(l core.Logger) *Pipeline {
	if l == nil {
		l = core.NopLogger{}
	}
	p.logger = l
	return p
}

// Strategies returns the names of the configured strategies in order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run executes the applicable strategies on src in order and returns the first
// success together with per-strategy timings.  When every applicable strategy
// fails the error is a *apperrors.NormalizationError listing each failure.
func (p *Pipeline) Run(ctx context.Context, src core.Source) (*core.EncodedImage, map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(p.strategies))
	if src == nil {
		return nil, timings, apperrors.New(apperrors.CategoryInput, "normalize", apperrors.ErrEmptyInput)
	}

	var failures []apperrors.StrategyFailure
	for _, s := range p.strategies {
		if !s.Applies(src) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, timings, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
		}

		out, elapsed, err := p.runStrategy(ctx, s, src)
		timings[s.Name()] = elapsed
		if err == nil {
			return out, timings, nil
		}
		p.logger.Warn("normalize.fallback",
			"strategy", s.Name(),
			"origin", src.Origin().String(),
			"error", err.Error(),
		)
		failures = append(failures, apperrors.StrategyFailure{Strategy: s.Name(), Err: err})
	}
	return nil, timings, &apperrors.NormalizationError{Failures: failures}
}

func (p *Pipeline) runStrategy(ctx context.Context, s core.Strategy, src core.Source) (*core.EncodedImage, time.Duration, error) {
	p.callHooksBefore(ctx, s.Name(), src)

	start := time.Now()
	out, err := s.Execute(ctx, src)
	elapsed := time.Since(start)
	if err == nil && (out == nil || len(out.Data) == 0) {
		out, err = nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	p.callHooksAfter(ctx, s.Name(), out, elapsed, err)
	return out, elapsed, err
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, src core.Source) {
	for _, h := range p.hooks {
		h.BeforeStrategy(ctx, name, src)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, out *core.EncodedImage, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStrategy(ctx, name, out, d, err)
	}
}

// Clone returns a shallow copy of the pipeline so templates can be reused
// safely across goroutines.
func (p *Pipeline) Clone() *Pipeline {
	cp := &Pipeline{
		strategies: make([]core.Strategy, len(p.strategies)),
		hooks:      make([]core.Hook, len(p.hooks)),
		logger:     p.logger,
	}
	copy(cp.strategies, p.strategies)
	copy(cp.hooks, p.hooks)
	return cp
}

// ── Normalizer ────────────────────────────────────────────────────────────────

// Normalizer turns any Source into backend-ready bytes: the strategy cascade
// followed by a best-effort PNG conversion.
type Normalizer struct {
	Pipeline  *Pipeline
	Reencoder *reencode.Reencoder
}

// NewNormalizer builds the default cascade
// data-url → object-url → redraw, plus blob for file-like sources.
func NewNormalizer(store core.ObjectStore, r *reencode.Reencoder) *Normalizer {
	p := New().Use(
		&EmbeddedDataStrategy{},
		&ObjectURLStrategy{Store: store},
		&RedrawStrategy{Reencoder: r},
		&BlobStrategy{},
	)
	return &Normalizer{Pipeline: p, Reencoder: r}
}

// Normalize returns src as encoded bytes, converted to PNG where possible.
func (n *Normalizer) Normalize(ctx context.Context, src core.Source) (*core.EncodedImage, error) {
	out, _, err := n.Pipeline.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	out = n.Reencoder.ForcePNG(ctx, out)
	if !core.IsAccepted(out.MediaType) {
		n.Pipeline.logger.Warn("normalize.unaccepted_media_type", "media_type", out.MediaType)
	}
	return out, nil
}
