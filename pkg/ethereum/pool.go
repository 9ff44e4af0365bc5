package ethereum

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-cfg/pkg/common"
	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
)

// nodeState tracks readiness and recent call failures of one node.
type nodeState struct {
	ready        bool
	failures     int
	benchedUntil time.Time
}

// Pool spreads code and trace reads over the configured execution nodes.
// Nodes become healthy once their metadata is ready and are benched for
// Config.Cooldown after Config.FailureThreshold consecutive failed calls.
type Pool struct {
	log    logrus.FieldLogger
	nodes  []execution.Node
	config *Config
	now    func() time.Time

	mu    sync.RWMutex
	state map[execution.Node]*nodeState

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool of RPC nodes from config.
func NewPool(log logrus.FieldLogger, config *Config) *Pool {
	nodes := make([]execution.Node, 0, len(config.Execution))

	for _, execCfg := range config.Execution {
		nodes = append(nodes, execution.NewRPCNode(log, execCfg))
	}

	return NewPoolWithNodes(log, nodes, config)
}

// NewPoolWithNodes creates a pool from already constructed nodes.
// A nil config is treated as empty.
func NewPoolWithNodes(log logrus.FieldLogger, nodes []execution.Node, config *Config) *Pool {
	if config == nil {
		config = &Config{}
	}

	state := make(map[execution.Node]*nodeState, len(nodes))
	for _, n := range nodes {
		state[n] = &nodeState{}
	}

	return &Pool{
		log:    log.WithField("component", "pool"),
		nodes:  nodes,
		config: config,
		now:    time.Now,
		state:  state,
	}
}

func (p *Pool) HasExecutionNodes() bool {
	return len(p.nodes) > 0
}

// healthy must be called with mu held.
func (p *Pool) healthy(s *nodeState, now time.Time) bool {
	return s.ready && !now.Before(s.benchedUntil)
}

func (p *Pool) HasHealthyExecutionNodes() bool {
	return len(p.GetHealthyExecutionNodes()) > 0
}

// GetHealthyExecutionNodes returns the healthy nodes in random order.
func (p *Pool) GetHealthyExecutionNodes() []execution.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	nodes := make([]execution.Node, 0, len(p.nodes))

	for _, n := range p.nodes {
		if p.healthy(p.state[n], now) {
			nodes = append(nodes, n)
		}
	}

	//nolint:gosec // load spreading only
	rand.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	return nodes
}

func (p *Pool) GetHealthyExecutionNode() execution.Node {
	nodes := p.GetHealthyExecutionNodes()
	if len(nodes) == 0 {
		return nil
	}

	return nodes[0]
}

// WaitForHealthyExecutionNode blocks until a node is healthy or ctx is done.
func (p *Pool) WaitForHealthyExecutionNode(ctx context.Context) (execution.Node, error) {
	if len(p.nodes) == 0 {
		return nil, ErrNoExecutionNodes
	}

	start := time.Now()

	p.log.WithField("total_nodes", len(p.nodes)).Info("Waiting for healthy execution node")

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	status := time.NewTicker(10 * time.Second)
	defer status.Stop()

	for {
		if node := p.GetHealthyExecutionNode(); node != nil {
			p.log.WithFields(logrus.Fields{
				"node":     node.Name(),
				"duration": time.Since(start).Round(time.Millisecond),
			}).Info("Found healthy execution node")

			return node, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-status.C:
			p.log.WithField("waiting_for", time.Since(start).Round(time.Second)).Info("Still waiting for a healthy execution node")
		case <-poll.C:
		}
	}
}

// report records the outcome of a call made through node.
func (p *Pool) report(node execution.Node, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.state[node]
	if !ok {
		return
	}

	if err == nil {
		s.failures = 0

		return
	}

	s.failures++

	if p.config.FailureThreshold == 0 || s.failures < p.config.FailureThreshold {
		return
	}

	s.failures = 0
	s.benchedUntil = p.now().Add(p.config.Cooldown)

	common.PoolNodesBenched.WithLabelValues(node.Name()).Inc()

	p.log.WithError(err).WithFields(logrus.Fields{
		"node":     node.Name(),
		"cooldown": p.config.Cooldown,
	}).Warn("Benching execution node after repeated failures")
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	// Node failures must not cancel the other nodes.
	g := new(errgroup.Group)

	for _, node := range p.nodes {
		g.Go(func() error {
			node.OnReady(ctx, func(_ context.Context) error {
				p.mu.Lock()
				p.state[node].ready = true
				p.mu.Unlock()

				p.UpdateNodeMetrics()

				return nil
			})

			return node.Start(ctx)
		})
	}

	p.UpdateNodeMetrics()

	p.wg.Go(func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.UpdateNodeMetrics()
			}
		}
	})

	go func() {
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			p.log.WithError(err).Error("Failed to start execution node")
		}
	}()
}

// UpdateNodeMetrics exports the number of nodes per status.
func (p *Pool) UpdateNodeMetrics() {
	p.mu.RLock()

	now := p.now()
	counts := map[string]int{"healthy": 0, "benched": 0, "starting": 0}

	for _, n := range p.nodes {
		s := p.state[n]

		switch {
		case !s.ready:
			counts["starting"]++
		case p.healthy(s, now):
			counts["healthy"]++
		default:
			counts["benched"]++
		}
	}

	p.mu.RUnlock()

	for status, count := range counts {
		common.PoolNodes.WithLabelValues(status).Set(float64(count))
	}
}

// Stop gracefully shuts down the pool.
func (p *Pool) Stop(ctx context.Context) error {
	p.log.Info("Stopping pool")

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("Timeout waiting for pool goroutines to stop")
	}

	for _, node := range p.nodes {
		if err := node.Stop(ctx); err != nil {
			p.log.WithError(err).WithField("node", node.Name()).Error("Failed to stop execution node")
		}
	}

	return nil
}

// GetNetworkByChainID returns the network information for the given chain ID.
// If overrideNetworkName is set in config, it returns that name instead of using networkMap.
func (p *Pool) GetNetworkByChainID(chainID int32) (*Network, error) {
	if p.config.OverrideNetworkName != nil && *p.config.OverrideNetworkName != "" {
		return &Network{
			ID:   chainID,
			Name: *p.config.OverrideNetworkName,
		}, nil
	}

	return GetNetworkByChainID(chainID)
}
