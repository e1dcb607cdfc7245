package cli

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
)

// controllerAddrs is every fabric listener the controller process binds,
// derived from a single --controller-addr host:port by consecutive port
// offsets. Running every shared binding point in the controller process is
// a deliberate simplification of a strict per-Address
// single-producer-binds rule: rather than have whichever service happens to
// produce first open the listener (awkward once every service is its own
// OS process started by the controller), the controller — the one process
// guaranteed to be up before anything else is spawned — binds all of them,
// and every other service dials in. See DESIGN.md.
type controllerAddrs struct {
	EventBus     string
	CreditDrop   string
	RawInference string
	Records      string
}

// deriveControllerAddrs computes the four listener addresses from base by
// incrementing its port, so a deployment only has to pick and pass along
// one address.
func deriveControllerAddrs(base string) (controllerAddrs, error) {
	host, port, err := net.SplitHostPort(base)
	if err != nil {
		return controllerAddrs{}, fmt.Errorf("invalid --controller-addr %q: %w", base, err)
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return controllerAddrs{}, fmt.Errorf("invalid --controller-addr port %q: %w", port, err)
	}
	return controllerAddrs{
		EventBus:     fmt.Sprintf("%s:%d", host, p),
		CreditDrop:   fmt.Sprintf("%s:%d", host, p+1),
		RawInference: fmt.Sprintf("%s:%d", host, p+2),
		Records:      fmt.Sprintf("%s:%d", host, p+3),
	}, nil
}

// dialFabric opens an insecure gRPC connection to addr. Every AIPerf
// process dials its peers the same way (no mTLS material is plumbed
// through the CLI yet; fabric.TLSMaterial is ready for a caller that builds
// one).
func dialFabric(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, fabric.DialOptions(nil)...)
}

// remoteQueue dials addr and returns a local *fabric.Queue pumped to and
// from the remote side, so code written against a local Queue (Worker,
// RecordProcessorService, ...) can run in a different process than whoever
// bound addr. bind is a Queue's zero-value Address label used only for
// logging inside the Queue itself.
func remoteQueue(ctx context.Context, addr string, bind fabric.Address, producer, consumer bool) (*fabric.Queue, func(), error) {
	conn, err := dialFabric(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	local := fabric.NewQueue(bind, fabric.DefaultSocketConfig(), 0)

	var closers []func()
	closers = append(closers, func() { _ = conn.Close() })

	if producer {
		push, closeFn, err := fabric.DialQueueProducer(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open producer stream to %s: %w", addr, err)
		}
		go fabric.PumpQueueIntoRemote(ctx, local, push)
		closers = append(closers, closeFn)
	}
	if consumer {
		pull, closeFn, err := fabric.DialQueueConsumer(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open consumer stream to %s: %w", addr, err)
		}
		go fabric.PumpRemoteIntoQueue(ctx, pull, local)
		closers = append(closers, closeFn)
	}

	return local, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// remoteBroker dials addr and returns a local *fabric.Broker mirroring the
// remote bus: every envelope published remotely is republished locally
// (consume), and every envelope published locally is forwarded to the
// remote bus (produce), so code written against a local Broker runs
// unmodified in a different process than whoever bound addr.
func remoteBroker(ctx context.Context, addr string, bind fabric.Address) (*fabric.Broker, func(), error) {
	conn, err := dialFabric(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	local := fabric.NewBroker(bind, fabric.DefaultSocketConfig())
	guard := fabric.NewRelayGuard()

	recv, recvClose, err := fabric.DialBrokerSubscriber(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open subscriber stream to %s: %w", addr, err)
	}
	go func() {
		for {
			env, err := recv()
			if err != nil {
				return
			}
			guard.Mark(env)
			local.Publish(fabric.Topic(env.MessageType), env)
		}
	}()

	pub, pubClose, err := fabric.DialBrokerPublisher(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open publisher stream to %s: %w", addr, err)
	}
	sub := local.Subscribe("")
	go func() {
		for env := range sub {
			if guard.ShouldSkip(env) {
				continue
			}
			if err := pub(env); err != nil {
				return
			}
		}
	}()

	return local, func() {
		local.Unsubscribe(sub)
		recvClose()
		pubClose()
		_ = conn.Close()
		local.Stop()
	}, nil
}
