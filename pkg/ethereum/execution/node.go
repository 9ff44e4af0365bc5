package execution

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution/services"
)

// Compile-time check that RPCNode implements Node.
var _ Node = (*RPCNode)(nil)

// headerTransport adds custom headers to requests and respects context cancellation
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// RPCNode implements Node over JSON-RPC.
type RPCNode struct {
	config *Config
	log    logrus.FieldLogger
	rpc    *ethrpc.Provider

	metadata *services.MetadataService
	services []services.Service

	onReadyCallbacks []func(ctx context.Context) error

	mu     sync.RWMutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewRPCNode(log logrus.FieldLogger, conf *Config) *RPCNode {
	return &RPCNode{
		config: conf,
		log:    log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
	}
}

func (n *RPCNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	n.onReadyCallbacks = append(n.onReadyCallbacks, callback)
}

func newHTTPClient(headers map[string]string) *http.Client {
	// No client timeout, request lifetimes come from the context.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: &headerTransport{headers: headers, base: transport},
	}
}

// Connect creates the RPC provider without starting background services.
// One-shot callers such as the analyze command use it instead of Start.
func (n *RPCNode) Connect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.rpc != nil {
		return nil
	}

	rpc, err := ethrpc.NewProvider(n.config.NodeAddress, ethrpc.WithHTTPClient(newHTTPClient(n.config.NodeHeaders)))
	if err != nil {
		return fmt.Errorf("failed to create RPC provider for %s: %w", n.config.NodeAddress, err)
	}

	n.rpc = rpc
	n.metadata = services.NewMetadataService(n.log, rpc)
	n.services = []services.Service{n.metadata}

	return nil
}

func (n *RPCNode) Start(ctx context.Context) error {
	n.log.Info("Starting execution node")

	if err := n.Connect(); err != nil {
		n.log.WithError(err).Error("Failed to create RPC provider")

		return err
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		var ready sync.WaitGroup

		for _, service := range n.services {
			ready.Add(1)

			service.OnReady(nodeCtx, func(_ context.Context) error {
				n.log.WithField("service", service.Name()).Info("Service is ready")
				ready.Done()

				return nil
			})

			n.log.WithField("service", service.Name()).Info("Starting service")

			if err := service.Start(nodeCtx); err != nil {
				n.log.WithError(err).WithField("service", service.Name()).Error("Failed to start service")

				return
			}
		}

		done := make(chan struct{})

		go func() {
			ready.Wait()
			close(done)
		}()

		select {
		case <-nodeCtx.Done():
			return
		case <-done:
		}

		n.log.WithField("client_type", n.ClientType()).Info("All services are ready")

		for _, callback := range n.onReadyCallbacks {
			callbackCtx, callbackCancel := context.WithTimeout(nodeCtx, 10*time.Second)

			if err := callback(callbackCtx); err != nil {
				n.log.WithError(err).Error("Failed to run on ready callback")
			}

			callbackCancel()
		}
	}()

	return nil
}

func (n *RPCNode) Stop(ctx context.Context) error {
	n.log.Info("Stopping execution node")

	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.mu.Unlock()

	done := make(chan struct{})

	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.log.Info("All node goroutines stopped gracefully")
	case <-ctx.Done():
		n.log.Warn("Timeout waiting for node goroutines to stop")
	}

	for _, service := range n.services {
		if err := service.Stop(ctx); err != nil {
			n.log.WithError(err).WithField("service", service.Name()).Error("Failed to stop service")
		}
	}

	return nil
}

func (n *RPCNode) provider() (*ethrpc.Provider, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.rpc == nil {
		return nil, ErrNotReady
	}

	return n.rpc, nil
}

func (n *RPCNode) meta() *services.MetadataService {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.metadata
}

func (n *RPCNode) ChainID() int32 {
	if m := n.meta(); m != nil {
		return m.ChainID()
	}

	return 0
}

func (n *RPCNode) ClientType() string {
	if m := n.meta(); m != nil {
		return string(m.Client())
	}

	return string(services.ClientUnknown)
}

func (n *RPCNode) IsSynced() bool {
	m := n.meta()

	return m != nil && m.IsSynced()
}

func (n *RPCNode) Name() string {
	return n.config.Name
}
