package fabric

import (
	"context"
	"crypto/tls"
	"crypto/x509"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// TLSMaterial holds the certificate and CA pool needed to dial or listen
// with mTLS: a single node certificate plus a CA pool for peer
// verification, reused by any process (worker, timing manager, controller)
// dialing or listening on a TCP Address.
type TLSMaterial struct {
	Cert   *tls.Certificate
	CAPool *x509.CertPool
}

// DialOptions builds the grpc.DialOption set for connecting to a fabric
// TCP endpoint. When tlsMaterial is nil, the connection is insecure — the
// default for same-host development and for IPC-equivalent local transports
// where mTLS is not meaningful.
func DialOptions(tlsMaterial *TLSMaterial) []grpc.DialOption {
	if tlsMaterial == nil {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*tlsMaterial.Cert},
		RootCAs:      tlsMaterial.CAPool,
		MinVersion:   tls.VersionTLS13,
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))}
}

// ServerOptions builds the grpc.ServerOption set for listening on a fabric
// TCP endpoint, requesting (but not requiring) client certificates so a
// mixed fleet of mTLS and plaintext peers can share one listener during
// rollout.
func ServerOptions(tlsMaterial *TLSMaterial) []grpc.ServerOption {
	if tlsMaterial == nil {
		return nil
	}
	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*tlsMaterial.Cert},
		ClientCAs:    tlsMaterial.CAPool,
		MinVersion:   tls.VersionTLS13,
	}
	return []grpc.ServerOption{grpc.Creds(credentials.NewTLS(tlsConfig))}
}

// envelopeStream is satisfied by both FabricClientStream and
// FabricServerStream, letting a single relay loop pump envelopes over
// either side of the connection.
type envelopeStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

// RelayEnvelopes pumps envelopes received on stream onto ch until ctx is
// done or the stream ends. Frames that fail to decode as a fabric Envelope
// are dropped rather than aborting the relay, since a single malformed
// message should not take down a long-lived connection.
func RelayEnvelopes(ctx context.Context, stream envelopeStream, ch chan<- types.Envelope) error {
	for {
		raw, err := stream.Recv()
		if err != nil {
			return err
		}
		env, err := types.UnmarshalEnvelope(raw.GetValue(), false)
		if err != nil {
			continue
		}
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SendEnvelope marshals env and writes it to stream.
func SendEnvelope(stream envelopeStream, env types.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return stream.Send(wrapperspb.Bytes(data))
}
