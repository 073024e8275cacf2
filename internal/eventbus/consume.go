package eventbus

import "context"

// Consume drains a typed subscription, handing each payload to handler. It
// returns when ctx is cancelled or the subscription closes. Services run it
// on their lifecycle goroutines, one per subscribed topic.
func Consume[T any](ctx context.Context, sub *TypedSubscription[T], handler func(T)) {
	if sub == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			handler(env.Payload)
		}
	}
}
