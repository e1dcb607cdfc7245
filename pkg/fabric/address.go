// Package fabric implements the AIPerf Messaging Fabric: an address-typed
// client factory offering PUB/SUB, PUSH/PULL, and DEALER/ROUTER semantics
// over TCP or IPC, plus the XPUB/XSUB and push-pull proxy brokers that sit
// between many producers and many consumers.
package fabric

import "fmt"

// Address is a closed enumeration of the fabric's logical endpoints. Each
// Address maps, per Transport, to a concrete URL.
type Address string

const (
	AddressEventBusProxyFrontend      Address = "event_bus_proxy_frontend"
	AddressEventBusProxyBackend       Address = "event_bus_proxy_backend"
	AddressCreditDrop                 Address = "credit_drop"
	AddressCreditReturn               Address = "credit_return"
	AddressRecords                    Address = "records"
	AddressDatasetManagerProxyFrontend Address = "dataset_manager_proxy_frontend"
	AddressDatasetManagerProxyBackend  Address = "dataset_manager_proxy_backend"
	AddressRawInferenceProxyFrontend  Address = "raw_inference_proxy_frontend"
	AddressRawInferenceProxyBackend   Address = "raw_inference_proxy_backend"
)

// Transport identifies the wire transport backing an Address.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportIPC Transport = "ipc"
)

// Endpoint resolves an Address to a concrete connection target for a given
// Transport: "host:port" for TCP, a filesystem path for IPC.
type Endpoint struct {
	Address   Address
	Transport Transport
	TCPHost   string
	TCPPort   int
	IPCPath   string
}

// URL returns the concrete connection string for this endpoint.
func (e Endpoint) URL() string {
	switch e.Transport {
	case TransportIPC:
		return e.IPCPath
	default:
		return fmt.Sprintf("%s:%d", e.TCPHost, e.TCPPort)
	}
}

// Binds reports whether the side of the connection identified by role binds
// (listens) rather than connects. Proxy backends bind; services connect to
// them. For non-proxy addresses (credit_drop, credit_return, records) a
// single producer binds and consumers connect.
func (a Address) Binds(isProducer bool) bool {
	switch a {
	case AddressEventBusProxyFrontend, AddressEventBusProxyBackend,
		AddressDatasetManagerProxyFrontend, AddressDatasetManagerProxyBackend,
		AddressRawInferenceProxyFrontend, AddressRawInferenceProxyBackend:
		return true
	default:
		return isProducer
	}
}
