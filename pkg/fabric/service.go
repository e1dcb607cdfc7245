package fabric

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName and streamMethod name the hand-written gRPC service the
// fabric exposes for cross-process transport. The fabric carries its own
// envelopes as JSON, so rather than generate protobuf stubs for a message
// schema the wire format never actually uses, the service frames each
// envelope in a wrapperspb.BytesValue — a stock well-known protobuf message
// — and moves it over a single bidirectional stream per Address.
const (
	serviceName  = "aiperf.fabric.Fabric"
	streamMethod = "Stream"
)

// FabricClientStream is satisfied by the client-side handle returned by
// dialing the Fabric service's Stream method.
type FabricClientStream interface {
	grpc.ClientStream
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

// FabricServerStream is satisfied by the server-side handle passed to the
// Stream method's handler.
type FabricServerStream interface {
	grpc.ServerStream
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

type fabricClientStream struct{ grpc.ClientStream }

func (s *fabricClientStream) Send(v *wrapperspb.BytesValue) error { return s.ClientStream.SendMsg(v) }
func (s *fabricClientStream) Recv() (*wrapperspb.BytesValue, error) {
	v := new(wrapperspb.BytesValue)
	if err := s.ClientStream.RecvMsg(v); err != nil {
		return nil, err
	}
	return v, nil
}

// OpenStream dials conn's Fabric service and returns a client-side
// bidirectional stream of raw envelope bytes.
func OpenStream(ctx context.Context, conn *grpc.ClientConn) (FabricClientStream, error) {
	stream, err := conn.NewStream(ctx, &streamDesc, "/"+serviceName+"/"+streamMethod)
	if err != nil {
		return nil, err
	}
	return &fabricClientStream{stream}, nil
}

var streamDesc = grpc.StreamDesc{
	StreamName:    streamMethod,
	ServerStreams: true,
	ClientStreams: true,
}

type fabricServerStream struct{ grpc.ServerStream }

func (s *fabricServerStream) Send(v *wrapperspb.BytesValue) error { return s.ServerStream.SendMsg(v) }
func (s *fabricServerStream) Recv() (*wrapperspb.BytesValue, error) {
	v := new(wrapperspb.BytesValue)
	if err := s.ServerStream.RecvMsg(v); err != nil {
		return nil, err
	}
	return v, nil
}

// StreamHandlerFunc is the per-connection handler a fabric server supplies;
// it owns the stream's lifetime and should return when the peer
// disconnects or ctx is cancelled.
type StreamHandlerFunc func(ctx context.Context, stream FabricServerStream) error

// RegisterFabricService wires handler into srv as the Fabric service's
// Stream method, so a single grpc.Server can host the fabric's transport
// alongside any other registered service.
func RegisterFabricService(srv *grpc.Server, handler StreamHandlerFunc) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    streamMethod,
				ServerStreams: true,
				ClientStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					return handler(stream.Context(), &fabricServerStream{stream})
				},
			},
		},
	}, nil)
}
