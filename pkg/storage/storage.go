// Package storage writes analysed transactions to ClickHouse.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/clickhouse"
	"github.com/ethpandaops/execution-cfg/pkg/rowbuffer"
)

const SinkName = "clickhouse"

// Sink is an analyzer.Sink that batches graph rows into ClickHouse.
type Sink struct {
	log     logrus.FieldLogger
	client  clickhouse.ClientInterface
	config  *Config
	network string

	blocks *rowbuffer.Buffer[BlockRow]
	edges  *rowbuffer.Buffer[EdgeRow]
}

var _ analyzer.Sink = (*Sink)(nil)

func New(log logrus.FieldLogger, client clickhouse.ClientInterface, config *Config, network string) *Sink {
	s := &Sink{
		log:     log.WithField("component", "storage"),
		client:  client,
		config:  config,
		network: network,
	}

	s.blocks = rowbuffer.New(rowbuffer.Config{
		MaxRows:       config.BufferMaxRows,
		FlushInterval: config.BufferFlushInterval,
		Network:       network,
		Table:         config.BlockTable,
	}, s.flushBlocks, s.log)

	s.edges = rowbuffer.New(rowbuffer.Config{
		MaxRows:       config.BufferMaxRows,
		FlushInterval: config.BufferFlushInterval,
		Network:       network,
		Table:         config.EdgeTable,
	}, s.flushEdges, s.log)

	return s
}

func (s *Sink) Name() string {
	return SinkName
}

// Start connects the client, creates the tables if configured and starts
// the row buffers.
func (s *Sink) Start(ctx context.Context) error {
	s.client.SetNetwork(s.network)

	if err := s.client.Start(); err != nil {
		return fmt.Errorf("failed to start ClickHouse client: %w", err)
	}

	if s.config.CreateTables {
		for _, ddl := range []string{blockTableDDL(s.config.BlockTable), edgeTableDDL(s.config.EdgeTable)} {
			if err := s.client.Execute(ctx, ddl); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
	}

	if err := s.blocks.Start(ctx); err != nil {
		return fmt.Errorf("failed to start block buffer: %w", err)
	}

	if err := s.edges.Start(ctx); err != nil {
		return fmt.Errorf("failed to start edge buffer: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"block_table": s.config.BlockTable,
		"edge_table":  s.config.EdgeTable,
	}).Info("ClickHouse storage ready")

	return nil
}

// Stop flushes the buffers and closes the client.
func (s *Sink) Stop(ctx context.Context) error {
	if err := s.blocks.Stop(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop block buffer")
	}

	if err := s.edges.Stop(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop edge buffer")
	}

	return s.client.Stop()
}

// Write submits the rows of result and waits until both tables have them.
func (s *Sink) Write(ctx context.Context, result *analyzer.Result) error {
	now := time.Now()

	blocks := BlockRows(result, s.network, now)
	edges := EdgeRows(result, s.network, now)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.blocks.Submit(gctx, blocks)
	})

	g.Go(func() error {
		return s.edges.Submit(gctx, edges)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to store graph of %s: %w", result.TxHash, err)
	}

	return nil
}

func (s *Sink) flushBlocks(ctx context.Context, rows []BlockRow) error {
	cols := NewBlockColumns()
	for i := range rows {
		cols.Append(&rows[i])
	}

	return s.client.Insert(ctx, s.config.BlockTable, cols.Input())
}

func (s *Sink) flushEdges(ctx context.Context, rows []EdgeRow) error {
	cols := NewEdgeColumns()
	for i := range rows {
		cols.Append(&rows[i])
	}

	return s.client.Insert(ctx, s.config.EdgeTable, cols.Input())
}

// BlockRows flattens the nodes of the stitched graph, placeholders included.
func BlockRows(result *analyzer.Result, network string, now time.Time) []BlockRow {
	nodes := result.Global.Nodes()
	rows := make([]BlockRow, 0, len(nodes))

	for _, n := range nodes {
		f := result.Tree.Frames[n.ID.Frame]

		row := BlockRow{
			UpdatedDateTime: now,
			TransactionHash: result.TxHash,
			FrameID:         f.ID,
			FramePath:       f.Path,
			CallType:        string(f.Type),
			Address:         strings.ToLower(n.Address.Hex()),
			BlockStart:      n.ID.Block,
			Tag:             string(n.Tag),
			Executed:        n.Executed,
			Placeholder:     n.Placeholder,
			Network:         network,
		}

		if n.Block != nil {
			row.BlockEnd = n.Block.End
			row.Instructions = uint32(len(n.Block.Instructions))
			row.Terminator = n.Block.Terminator().Op.String()
		}

		rows = append(rows, row)
	}

	return rows
}

// EdgeRows flattens the edges of the stitched graph.
func EdgeRows(result *analyzer.Result, network string, now time.Time) []EdgeRow {
	edges := result.Global.Edges()
	rows := make([]EdgeRow, 0, len(edges))

	for _, e := range edges {
		rows = append(rows, EdgeRow{
			UpdatedDateTime: now,
			TransactionHash: result.TxHash,
			FromFrame:       e.From.Frame,
			FromBlock:       e.From.Block,
			ToFrame:         e.To.Frame,
			ToBlock:         e.To.Block,
			Kind:            e.Kind.String(),
			CallType:        string(e.CallType),
			Executed:        e.Executed,
			Network:         network,
		})
	}

	return rows
}
