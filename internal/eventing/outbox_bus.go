package eventing

import (
	"context"
)

// Publisher writes events to an outbox and triggers dispatch. When no outbox
// is configured (in-memory deployments) events go straight to the bus.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	bus      EventBus
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, bus EventBus) *Publisher {
	return &Publisher{outbox: outbox, dispatch: dispatch, bus: bus}
}

// Publish writes the event to the outbox and triggers dispatch.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil {
		return nil
	}
	if p.outbox == nil {
		if p.bus == nil {
			return nil
		}
		env, err := BuildEnvelope(event, MetaFromContext(ctx))
		if err != nil {
			return err
		}
		return p.bus.Publish(WithEnvelope(ctx, env), event)
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	if p.dispatch != nil {
		_ = p.dispatch.Dispatch(ctx, 1)
	}
	return nil
}

// Subscribe delegates to the underlying bus when available.
func (p *Publisher) Subscribe(eventType string, handler EventHandler) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Subscribe(eventType, handler)
}
