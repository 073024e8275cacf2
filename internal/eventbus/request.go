package eventbus

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrClosed is returned by Call when the bus shuts down before a reply arrives.
var ErrClosed = errors.New("eventbus: closed")

// ErrNilBus is returned by Call when invoked on a nil bus.
var ErrNilBus = errors.New("eventbus: nil bus")

// Call publishes a request on the descriptor's topic tagged with a fresh
// correlation id and blocks until the first reply carrying the same id
// arrives on the derived "<topic>.reply" topic.
//
// The reply subscription is single-shot: it is registered before the request
// is published (so a responder can never win the race), torn down on the
// first matching reply, and torn down on ctx cancellation so an unloading
// caller leaves nothing behind. Replies with a stale or non-matching id are
// ignored, and a second matching reply has no one left to resolve.
//
// Call applies no timeout of its own; callers needing a bounded wait pass a
// ctx with a deadline.
func Call[Req, Resp any](ctx context.Context, bus *Bus, td TopicDef[Req], source Source, payload Req) (Resp, error) {
	var zero Resp
	if bus == nil {
		return zero, ErrNilBus
	}

	id := uuid.NewString()

	sub := bus.Subscribe(td.reply(), WithContext(ctx), WithSubscriptionName(string(td.topic)+" caller"))
	defer sub.Close()

	bus.publish(ctx, Envelope{
		Topic:         td.topic,
		Source:        source,
		CorrelationID: id,
		Payload:       payload,
	})

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case env, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				return zero, ErrClosed
			}
			if env.CorrelationID != id {
				continue
			}
			resp, ok := env.Payload.(Resp)
			if !ok {
				continue
			}
			return resp, nil
		}
	}
}

// Reply publishes a response for the request identified by correlationID on
// the descriptor's derived reply topic. If bus is nil the call is a no-op.
func Reply[Req, Resp any](ctx context.Context, bus *Bus, td TopicDef[Req], source Source, correlationID string, payload Resp) {
	if bus == nil || correlationID == "" {
		return
	}
	bus.publish(ctx, Envelope{
		Topic:         td.reply(),
		Source:        source,
		CorrelationID: correlationID,
		Payload:       payload,
	})
}

// Respond consumes requests on the descriptor's topic and answers each one
// via Reply until ctx is cancelled. Requests without a correlation id are
// broadcast-only and are skipped. When handler returns an error no reply is
// sent; the caller's wait stays pending until its own ctx expires.
func Respond[Req, Resp any](ctx context.Context, bus *Bus, td TopicDef[Req], source Source, handler func(Req) (Resp, error)) {
	sub := SubscribeTo(bus, td, WithContext(ctx), WithSubscriptionName(string(td.topic)+" responder"))
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if env.CorrelationID == "" {
				continue
			}
			resp, err := handler(env.Payload)
			if err != nil {
				continue
			}
			Reply(ctx, bus, td, source, env.CorrelationID, resp)
		}
	}
}
