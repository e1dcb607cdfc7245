package fabric

import (
	"sync"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Topic groups published messages for SUB-side prefix filtering, e.g.
// "credit_return.profiling".
type Topic string

// subscriber is a single SUB client's inbound queue.
type subscriber struct {
	topic Topic
	ch    chan types.Envelope
}

// Broker is the fabric's PUB/SUB implementation: publishers send to an
// Address/Topic pair, and every subscriber registered for a matching topic
// prefix receives a copy. Delivery is best-effort and unordered across
// topics, but ordered within a single (publisher goroutine, topic) pair.
// Generalized from a single-event-type broker that fans out to unfiltered
// subscribers; this version adds per-topic routing since the fabric's
// PUB/SUB is used by several independent producers (credit returns,
// realtime metrics, phase events) sharing one bus.
type Broker struct {
	addr Address
	cfg  SocketConfig

	mu   sync.RWMutex
	subs map[*subscriber]bool

	publishCh chan publishRequest
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type publishRequest struct {
	topic Topic
	env   types.Envelope
}

// NewBroker creates a PUB/SUB broker bound to addr.
func NewBroker(addr Address, cfg SocketConfig) *Broker {
	b := &Broker{
		addr:      addr,
		cfg:       cfg,
		subs:      make(map[*subscriber]bool),
		publishCh: make(chan publishRequest, cfg.SendHWM),
		stopCh:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop shuts the broker down; further Publish calls are dropped.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Publish sends env under topic to every subscriber whose registered topic
// is a prefix of topic.
func (b *Broker) Publish(topic Topic, env types.Envelope) {
	select {
	case b.publishCh <- publishRequest{topic: topic, env: env}:
	case <-b.stopCh:
	}
}

// Subscribe registers a new SUB client for the given topic prefix and
// returns a channel delivering matching envelopes. Call Unsubscribe when
// done to release the channel.
func (b *Broker) Subscribe(topic Topic) <-chan types.Envelope {
	sub := &subscriber{topic: topic, ch: make(chan types.Envelope, b.cfg.RecvHWM)}
	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a subscription created by Subscribe, identified by
// the channel it returned.
func (b *Broker) Unsubscribe(ch <-chan types.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.ch == ch {
			delete(b.subs, sub)
			close(sub.ch)
			return
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) run() {
	for {
		select {
		case req := <-b.publishCh:
			b.broadcast(req)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(req publishRequest) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !topicMatches(sub.topic, req.topic) {
			continue
		}
		select {
		case sub.ch <- req.env:
		default:
			// Subscriber buffer full (RecvHWM exceeded); best-effort
			// delivery drops the message rather than blocking the bus.
		}
	}
}

func topicMatches(subTopic, published Topic) bool {
	if subTopic == "" {
		return true
	}
	if len(published) < len(subTopic) {
		return false
	}
	return published[:len(subTopic)] == subTopic
}
