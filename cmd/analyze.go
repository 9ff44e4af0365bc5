package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-cfg/pkg/output"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

var errNoRPC = errors.New("an RPC endpoint is required: pass --rpc or set GETH_API")

type analyzeFlags struct {
	txHash       string
	traceFile    string
	to           string
	rpc          string
	output       string
	render       bool
	format       string
	executedOnly bool
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyzes one transaction and writes its graphs to disk.",
	Long: `Analyzes one transaction, either by hash over RPC or from a struct logger
trace file, and writes the per-frame and global graphs as DOT files.`,
	Example: `  execution-cfg analyze --tx-hash 0xabc... --rpc http://localhost:8545
  execution-cfg analyze --trace trace.json --to 0xdead... --render`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, analyzeOpts)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.txHash, "tx-hash", "", "transaction hash to trace over RPC")
	f.StringVar(&analyzeOpts.traceFile, "trace", "", "struct logger trace file to analyze instead of tracing")
	f.StringVar(&analyzeOpts.to, "to", "", "root contract address, overrides the transaction recipient")
	f.StringVar(&analyzeOpts.rpc, "rpc", os.Getenv("GETH_API"), "execution node RPC URL (default $GETH_API)")
	f.StringVar(&analyzeOpts.output, "output", "output", "output directory")
	f.BoolVar(&analyzeOpts.render, "render", false, "render DOT files with graphviz")
	f.StringVar(&analyzeOpts.format, "format", "png", "image format used with --render")
	f.BoolVar(&analyzeOpts.executedOnly, "executed-only", false, "leave unexecuted blocks out of the graphs")

	analyzeCmd.MarkFlagsMutuallyExclusive("tx-hash", "trace")
	analyzeCmd.MarkFlagsOneRequired("tx-hash", "trace")

	rootCmd.AddCommand(analyzeCmd)
}

// analyzeConfig returns the analyzer and output configuration, read from the
// config file when one is given.
func analyzeConfig(cmd *cobra.Command, opts analyzeFlags) (*analyzer.Config, *output.Config, error) {
	config := analyzer.DefaultConfig()
	out := &output.Config{}

	if err := defaults.Set(out); err != nil {
		return nil, nil, err
	}

	if serverConfigFile != "" {
		srv, err := loadServerConfigFromFile(serverConfigFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}

		config = &srv.Analyzer

		if srv.Output != nil {
			out = srv.Output
		}
	}

	flags := cmd.Flags()
	if flags.Changed("output") || serverConfigFile == "" {
		out.Directory = opts.output
	}

	if flags.Changed("render") {
		out.Render = opts.render
	}

	if flags.Changed("format") {
		out.Format = opts.format
	}

	if flags.Changed("executed-only") {
		out.ExecutedOnly = opts.executedOnly
		config.ExecutedOnly = opts.executedOnly
	}

	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	if err := out.Validate(); err != nil {
		return nil, nil, err
	}

	return config, out, nil
}

func runAnalyze(cmd *cobra.Command, opts analyzeFlags) error {
	ctx := ctxOrBackground(cmd.Context())

	config, out, err := analyzeConfig(cmd, opts)
	if err != nil {
		return err
	}

	req := analyzer.Request{TxHash: opts.txHash}

	if opts.to != "" {
		root, ok := trace.ParseAddress(opts.to)
		if !ok {
			return fmt.Errorf("invalid --to address %q", opts.to)
		}

		req.Root = &root
	}

	if opts.traceFile != "" {
		steps, err := readTrace(opts.traceFile)
		if err != nil {
			return err
		}

		req.Steps = steps
	}

	if req.TxHash != "" {
		if err := analyzer.ValidateHash(req.TxHash); err != nil {
			return err
		}
	}

	if opts.rpc == "" {
		return errNoRPC
	}

	node := execution.NewRPCNode(log, &execution.Config{Name: "cli", NodeAddress: opts.rpc, CodeBlock: config.CodeBlock})
	if err := node.Connect(); err != nil {
		return err
	}

	writer := output.New(log, out)
	a := analyzer.New(log, config, node, node, writer)

	result, err := a.Analyze(ctx, req)
	if result != nil {
		printSummary(result, writer.Dir(result))
	}

	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	return nil
}

func readTrace(path string) ([]trace.Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	return trace.ParseTrace(f)
}

func printSummary(result *analyzer.Result, dir string) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	warn := color.New(color.FgYellow)

	title := result.TxHash
	if title == "" {
		title = "trace"
	}

	bold.Printf("%s\n", title)
	fmt.Printf("  root       %s\n", result.Root.Hex())
	fmt.Printf("  steps      %d\n", result.Tree.NumSteps())
	fmt.Printf("  frames     %d\n", len(result.Tree.Frames))
	fmt.Printf("  contracts  %d\n", len(result.Contracts))
	fmt.Printf("  duration   %s\n", result.Duration)

	if result.Global != nil {
		fmt.Printf("  global     %d nodes, %d edges\n", len(result.Global.Nodes()), len(result.Global.Edges()))
	}

	if n := result.Mismatches(); n > 0 {
		warn.Printf("  mismatches %d\n", n)
	}

	fmt.Println()

	for _, f := range result.Tree.Frames {
		view, ok := result.Views[f.ID]
		if !ok {
			dim.Printf("  #%-3d %-12s %s (no code)\n", f.ID, f.Type, f.Address.Hex())

			continue
		}

		line := fmt.Sprintf("  #%-3d %-12s %s %d/%d blocks", f.ID, f.Type, addressOf(f), len(view.ExecutedBlocks()), view.Graph.NumBlocks())
		if view.Mismatches() > 0 {
			warn.Printf("%s, %d mismatches\n", line, view.Mismatches())

			continue
		}

		fmt.Println(line)
	}

	fmt.Println()
	color.Green("wrote %s", dir)
}

func addressOf(f *trace.Frame) string {
	if f.Type.IsCreate() {
		return fmt.Sprintf("%-42s", "(init code)")
	}

	return f.Address.Hex()
}

// ctxOrBackground keeps runAnalyze usable from tests that call it without a
// cobra context.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}
