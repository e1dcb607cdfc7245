package fabric

import "context"

// EventBusProxy is the fabric's XPUB/XSUB proxy: publishers connect to the
// frontend broker, subscribers connect to the backend broker, and the
// proxy relays every message from frontend to backend so a single bus
// address can multiplex many independent publishers and subscribers
// without them needing to know about each other.
type EventBusProxy struct {
	Frontend *Broker
	Backend  *Broker
}

// NewEventBusProxy creates a proxy relaying frontend publishes to backend
// subscribers.
func NewEventBusProxy(frontend, backend *Broker) *EventBusProxy {
	return &EventBusProxy{Frontend: frontend, Backend: backend}
}

// Run subscribes to every topic on Frontend and republishes each message to
// Backend under the same topic, until ctx is done.
func (p *EventBusProxy) Run(ctx context.Context) {
	inbound := p.Frontend.Subscribe("")
	defer p.Frontend.Unsubscribe(inbound)
	for {
		select {
		case env, ok := <-inbound:
			if !ok {
				return
			}
			p.Backend.Publish(Topic(env.MessageType), env)
		case <-ctx.Done():
			return
		}
	}
}
