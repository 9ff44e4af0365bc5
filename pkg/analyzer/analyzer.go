// Package analyzer runs the full pipeline for one transaction: trace, call
// tree, per-contract static graphs, highlighting and stitching.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	pcommon "github.com/ethpandaops/execution-cfg/pkg/common"
	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/stitch"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

const (
	SourceRPC  = "rpc"
	SourceFile = "file"
)

// CodeSource returns the deployed bytecode of an address.
type CodeSource interface {
	GetCode(ctx context.Context, address common.Address, block string) ([]byte, error)
}

// TraceSource returns transaction traces and envelopes.
type TraceSource interface {
	TraceTransaction(ctx context.Context, hash string, opts execution.TraceOptions) (*execution.TraceTransaction, error)
	TransactionByHash(ctx context.Context, hash string) (*execution.Transaction, error)
}

// Sink receives every successful analysis.
type Sink interface {
	Name() string
	Write(ctx context.Context, result *Result) error
}

// Request selects what to analyse. Either TxHash or Steps must be set.
type Request struct {
	TxHash string
	// Steps is a trace loaded elsewhere. When set no trace is fetched.
	Steps []trace.Step
	// Root overrides the transaction recipient.
	Root *common.Address
	// InitCode is the deployment code of a creation transaction. With no
	// Root it marks the trace as a creation.
	InitCode []byte
}

func (r *Request) source() string {
	if r.Steps != nil {
		return SourceFile
	}

	return SourceRPC
}

type Analyzer struct {
	log    logrus.FieldLogger
	config *Config
	code   CodeSource
	traces TraceSource
	sinks  []Sink
}

// New creates an analyzer. traces may be nil when every request carries its
// own steps and root.
func New(log logrus.FieldLogger, config *Config, code CodeSource, traces TraceSource, sinks ...Sink) *Analyzer {
	return &Analyzer{
		log:    log.WithField("component", "analyzer"),
		config: config,
		code:   code,
		traces: traces,
		sinks:  sinks,
	}
}

// ValidateHash checks that hash is a 32 byte 0x-prefixed hex string.
func ValidateHash(hash string) error {
	b, err := hexutil.Decode(hash)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidHash, hash, err)
	}

	if len(b) != common.HashLength {
		return fmt.Errorf("%w: %s: expected %d bytes, got %d", ErrInvalidHash, hash, common.HashLength, len(b))
	}

	return nil
}

// Analyze runs the pipeline for req and hands the result to every sink.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	source := req.source()

	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
		}

		pcommon.AnalysesTotal.WithLabelValues(source, status).Inc()
		pcommon.AnalysisDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	log := a.log.WithFields(logrus.Fields{"tx_hash": req.TxHash, "source": source})

	steps, err := a.steps(ctx, req)
	if err != nil {
		return nil, err
	}

	root, initCode, err := a.root(ctx, req, steps)
	if err != nil {
		return nil, err
	}

	tree := trace.BuildCallTree(steps, root)

	contracts, err := a.buildContracts(ctx, tree.Contracts())
	if err != nil {
		return nil, err
	}

	result = &Result{
		TxHash:    req.TxHash,
		Root:      root,
		Tree:      tree,
		Contracts: contracts,
		Views:     make(map[uint32]*highlight.Annotation),
	}

	if tree.Root.Type.IsCreate() && len(initCode) > 0 {
		result.InitCode = a.buildContract(ctx, common.Address{}, initCode)
	}

	for _, f := range tree.Frames {
		contract := result.ContractOf(f)
		if contract == nil || len(f.Steps) == 0 {
			continue
		}

		view := highlight.Highlight(contract.Graph, f.Steps)
		result.Views[f.ID] = view

		if view.Mismatches() == 0 {
			continue
		}

		pcommon.TraceMismatches.WithLabelValues("block").Add(float64(view.BlockMismatches))
		pcommon.TraceMismatches.WithLabelValues("edge").Add(float64(view.EdgeMismatches))

		log.WithFields(logrus.Fields{
			"frame":            f.ID,
			"address":          f.Address.Hex(),
			"block_mismatches": view.BlockMismatches,
			"edge_mismatches":  view.EdgeMismatches,
		}).Warn("Trace does not match the static graph")
	}

	result.Global = stitch.Stitch(tree, result.Views, stitch.Options{ExecutedOnly: a.config.ExecutedOnly})
	result.Duration = time.Since(start)

	pcommon.StitchPlaceholders.Add(float64(result.Global.Report.Placeholders))

	log.WithFields(logrus.Fields{
		"frames":          len(tree.Frames),
		"contracts":       len(contracts),
		"steps":           tree.NumSteps(),
		"placeholders":    result.Global.Report.Placeholders,
		"unmatched_calls": result.Global.Report.UnmatchedCalls,
		"duration":        result.Duration,
	}).Info("Analysed transaction")

	if err := a.write(ctx, result); err != nil {
		return result, err
	}

	return result, nil
}

func (a *Analyzer) steps(ctx context.Context, req Request) ([]trace.Step, error) {
	if req.Steps != nil {
		if len(req.Steps) == 0 {
			return nil, fmt.Errorf("%w: trace has no steps", ErrMissingInput)
		}

		return req.Steps, nil
	}

	if req.TxHash == "" {
		return nil, fmt.Errorf("%w: transaction hash or trace required", ErrMissingInput)
	}

	if err := ValidateHash(req.TxHash); err != nil {
		return nil, err
	}

	if a.traces == nil {
		return nil, fmt.Errorf("%w: no trace source for %s", ErrMissingInput, req.TxHash)
	}

	tx, err := a.traces.TraceTransaction(ctx, req.TxHash, execution.DefaultTraceOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: trace of %s: %w", ErrMissingInput, req.TxHash, err)
	}

	if len(tx.Structlogs) == 0 {
		return nil, fmt.Errorf("%w: trace of %s has no steps", ErrMissingInput, req.TxHash)
	}

	return trace.FromStructLogs(tx.Structlogs), nil
}

// root resolves the recipient of the transaction and, for creations, its
// deployment code.
func (a *Analyzer) root(ctx context.Context, req Request, steps []trace.Step) (common.Address, []byte, error) {
	switch {
	case req.Root != nil:
		return *req.Root, req.InitCode, nil
	case len(req.InitCode) > 0:
		return common.Address{}, req.InitCode, nil
	}

	if req.TxHash != "" && a.traces != nil {
		tx, err := a.traces.TransactionByHash(ctx, req.TxHash)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("%w: transaction %s: %w", ErrMissingInput, req.TxHash, err)
		}

		if tx.IsCreation() {
			return common.Address{}, tx.Input, nil
		}

		return *tx.To, nil, nil
	}

	if steps[0].Address != nil {
		return *steps[0].Address, nil, nil
	}

	return common.Address{}, nil, fmt.Errorf("%w: root contract address", ErrMissingInput)
}

// buildContracts fetches and builds the graph of every code address once.
func (a *Analyzer) buildContracts(ctx context.Context, addresses []common.Address) (map[common.Address]*Contract, error) {
	contracts := make(map[common.Address]*Contract, len(addresses))

	if len(addresses) == 0 {
		return contracts, nil
	}

	if a.code == nil {
		return nil, fmt.Errorf("%w: no code source for %d contracts", ErrMissingInput, len(addresses))
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)

	for _, addr := range addresses {
		g.Go(func() error {
			code, err := a.fetchCode(gctx, addr)
			if err != nil {
				return fmt.Errorf("%w: code of %s: %w", ErrMissingInput, addr.Hex(), err)
			}

			if len(code) == 0 {
				a.log.WithField("address", addr.Hex()).Warn("Executed contract has no code at the configured block")

				return nil
			}

			contract := a.buildContract(gctx, addr, code)

			mu.Lock()
			contracts[addr] = contract
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return contracts, nil
}

// fetchCode reads the code of addr, retrying failed reads with exponential
// backoff.
func (a *Analyzer) fetchCode(ctx context.Context, addr common.Address) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(a.config.FetchRetryDelay, time.Millisecond)
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(a.config.FetchRetries, 0))), ctx)

	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		return a.code.GetCode(ctx, addr, a.config.CodeBlock)
	}, policy, func(err error, delay time.Duration) {
		a.log.WithError(err).WithFields(logrus.Fields{
			"address": addr.Hex(),
			"delay":   delay,
		}).Debug("Retrying bytecode fetch")
	})
}

func (a *Analyzer) buildContract(ctx context.Context, addr common.Address, code []byte) *Contract {
	start := time.Now()
	graph := cfg.Build(ctx, code, &a.config.CFG)

	pcommon.CFGBuildDuration.Observe(time.Since(start).Seconds())
	pcommon.CFGBlocks.Observe(float64(graph.NumBlocks()))
	pcommon.CFGUnresolvedJumps.Add(float64(graph.Report.UnresolvedJumps))

	kinds := make(map[cfg.EdgeKind]int)
	for _, e := range graph.Edges() {
		kinds[e.Kind]++
	}

	for _, kind := range []cfg.EdgeKind{cfg.EdgeDirect, cfg.EdgeIndirect, cfg.EdgeFallthrough} {
		pcommon.CFGEdges.WithLabelValues(kind.String()).Observe(float64(kinds[kind]))
	}

	if graph.Report.CapacityExceeded > 0 {
		pcommon.CFGTracerLimits.WithLabelValues("capacity").Add(float64(graph.Report.CapacityExceeded))
	}

	if graph.Report.StackUnderflows > 0 {
		pcommon.CFGTracerLimits.WithLabelValues("underflow").Add(float64(graph.Report.StackUnderflows))
	}

	if graph.Report.BudgetExhausted {
		pcommon.CFGTracerLimits.WithLabelValues("budget").Inc()
	}

	a.log.WithFields(logrus.Fields{
		"address":          addr.Hex(),
		"code_size":        len(code),
		"blocks":           graph.NumBlocks(),
		"edges":            graph.NumEdges(),
		"unresolved_jumps": graph.Report.UnresolvedJumps,
		"decode_anomalies": graph.Report.DecodeAnomalies,
	}).Debug("Built contract graph")

	return &Contract{Address: addr, Code: code, Graph: graph}
}

// write hands result to every sink. All sinks run; their errors are joined.
func (a *Analyzer) write(ctx context.Context, result *Result) error {
	var errs []error

	for _, s := range a.sinks {
		if err := s.Write(ctx, result); err != nil {
			a.log.WithError(err).WithField("sink", s.Name()).Error("Failed to write analysis")

			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}

	return errors.Join(errs...)
}
