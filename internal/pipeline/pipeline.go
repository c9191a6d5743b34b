package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/store"
	"go.uber.org/zap"
)

// Recorder is the storage capability the pipeline records into. The store
// upserts by identity, so re-recording a resolver's output enriches the
// rows written by earlier stages.
type Recorder interface {
	RecordMessages([]*store.Message) error
}

// Pipeline is an ordered registry of named resolvers. Registration order is
// processing order: resolvers are written to be independent, but order
// determines which enrichment is visible soonest.
type Pipeline struct {
	recorder  Recorder
	core      *bus.Core
	logger    *zap.Logger
	resolvers []Resolver
}

// New creates an empty pipeline.
func New(recorder Recorder, core *bus.Core, logger *zap.Logger) *Pipeline {
	return &Pipeline{recorder: recorder, core: core, logger: logger}
}

// Register appends a resolver. Names must be unique; the resolver must be
// one of the two variants.
func (p *Pipeline) Register(r Resolver) error {
	switch r.(type) {
	case BatchResolver, StreamResolver:
	default:
		return fmt.Errorf("resolver %q implements neither variant", r.Name())
	}
	for _, existing := range p.resolvers {
		if existing.Name() == r.Name() {
			return fmt.Errorf("resolver %q already registered", r.Name())
		}
	}
	p.resolvers = append(p.resolvers, r)
	return nil
}

// Names returns the registered resolver names in processing order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.resolvers))
	for i, r := range p.resolvers {
		names[i] = r.Name()
	}
	return names
}

// Process runs a freshly converted batch through the pipeline. The raw
// batch is emitted and recorded before any resolver runs, so consumers see
// messages immediately and ingestion is never blocked on enrichment. A
// resolver failure is logged and skipped: it never drops messages and never
// halts the stages after it. Only the initial record can fail Process.
func (p *Pipeline) Process(ctx context.Context, batch []*store.Message) error {
	if len(batch) == 0 {
		return nil
	}

	p.emit("pipeline:batch", len(batch), "")
	if err := p.recorder.RecordMessages(batch); err != nil {
		return p.core.WithError(err, "record raw batch", zap.Int("messages", len(batch)))
	}

	current := batch
	for _, r := range p.resolvers {
		out, err := p.invoke(ctx, r, current)
		if err != nil {
			p.logger.Warn("resolver failed, continuing",
				zap.String("resolver", r.Name()),
				zap.Int("messages", len(current)),
				zap.Error(err))
			continue
		}
		if err := p.recorder.RecordMessages(out); err != nil {
			p.logger.Warn("failed to record resolver output",
				zap.String("resolver", r.Name()),
				zap.Error(err))
			continue
		}
		current = out
		p.emit("pipeline:resolved", len(out), r.Name())
	}
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, r Resolver, batch []*store.Message) ([]*store.Message, error) {
	switch res := r.(type) {
	case BatchResolver:
		return res.Run(ctx, batch)
	case StreamResolver:
		out := make([]*store.Message, 0, len(batch))
		for m := range res.Stream(ctx, batch) {
			out = append(out, m)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return out, nil
	default:
		// Register guards against this.
		return nil, fmt.Errorf("resolver %q has no variant", r.Name())
	}
}

func (p *Pipeline) emit(kind string, count int, resolver string) {
	payload := map[string]any{"messages": count}
	if resolver != "" {
		payload["resolver"] = resolver
	}
	p.core.Emit(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
