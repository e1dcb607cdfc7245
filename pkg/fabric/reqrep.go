package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// ReplyHandler answers a single request envelope.
type ReplyHandler func(ctx context.Context, req types.Envelope) (types.Envelope, error)

// RequestClient is the fabric's DEALER side: it correlates outstanding
// requests by request_id and supports both a blocking request and a
// callback-based asynchronous request, mirroring the original's REQUEST
// client (`request`/`request_async`).
type RequestClient struct {
	addr Address
	sink chan<- types.Envelope

	mu      sync.Mutex
	pending map[string]chan types.Envelope
}

// NewRequestClient creates a DEALER client bound to addr, sending requests
// onto sink (typically the in-process channel backing a ReplyServer, or a
// queue feeding a remote transport).
func NewRequestClient(addr Address, sink chan<- types.Envelope) *RequestClient {
	return &RequestClient{
		addr:    addr,
		sink:    sink,
		pending: make(map[string]chan types.Envelope),
	}
}

// Deliver completes the pending request matching env.RequestID, if any.
// Called by the transport layer when a reply arrives.
func (c *RequestClient) Deliver(env types.Envelope) {
	c.mu.Lock()
	slot, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.mu.Unlock()
	if ok {
		slot <- env
	}
}

// Request sends req and blocks until a matching reply arrives or timeout
// elapses, returning a *aierrors.CommunicationError on timeout.
func (c *RequestClient) Request(ctx context.Context, req types.Envelope, timeout time.Duration) (types.Envelope, error) {
	slot := make(chan types.Envelope, 1)
	c.mu.Lock()
	c.pending[req.RequestID] = slot
	c.mu.Unlock()

	select {
	case c.sink <- req:
	case <-ctx.Done():
		c.cancel(req.RequestID)
		return types.Envelope{}, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-slot:
		return reply, nil
	case <-timer.C:
		c.cancel(req.RequestID)
		return types.Envelope{}, aierrors.NewCommunicationError("request "+req.RequestID, context.DeadlineExceeded)
	case <-ctx.Done():
		c.cancel(req.RequestID)
		return types.Envelope{}, ctx.Err()
	}
}

// RequestAsync registers a completion slot for req and invokes callback
// from a new goroutine once a reply arrives or timeout elapses, never
// blocking the caller.
func (c *RequestClient) RequestAsync(ctx context.Context, req types.Envelope, timeout time.Duration, callback func(types.Envelope, error)) {
	go func() {
		reply, err := c.Request(ctx, req, timeout)
		callback(reply, err)
	}()
}

func (c *RequestClient) cancel(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// ReplyServer is the fabric's ROUTER side: it receives requests from a
// Queue-like source, dispatches them to a ReplyHandler, and routes the
// response back to the originating RequestClient via Deliver.
type ReplyServer struct {
	addr    Address
	handler ReplyHandler
	client  *RequestClient
}

// NewReplyServer creates a ROUTER server bound to addr, answering every
// request with handler and routing replies back through client.Deliver.
func NewReplyServer(addr Address, handler ReplyHandler, client *RequestClient) *ReplyServer {
	return &ReplyServer{addr: addr, handler: handler, client: client}
}

// Serve handles a single request synchronously, invoking the handler and
// delivering its reply (or an ErrorPayload-wrapped failure envelope) back
// to the originating client.
func (s *ReplyServer) Serve(ctx context.Context, req types.Envelope) {
	reply, err := s.handler(ctx, req)
	if err != nil {
		errPayload := types.ErrorPayload{ErrorCode: "reply_handler_error", Error: err.Error()}
		reply, _ = types.NewEnvelope(types.MessageTypeError, req.ServiceID, errPayload)
	}
	reply.RequestID = req.RequestID
	s.client.Deliver(reply)
}
