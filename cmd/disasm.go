package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-cfg/pkg/asm"
	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/evm"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/render"
)

var errNoCode = errors.New("--code is required")

var (
	disasmCode string
	disasmDOT  string
)

var disasmCmd = &cobra.Command{
	Use:   "disasm",
	Short: "Disassembles bytecode and optionally writes its static graph.",
	Example: `  execution-cfg disasm --code 0x6004565b00
  execution-cfg disasm --code runtime.hex --dot runtime.dot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readCode(disasmCode)
		if err != nil {
			return err
		}

		p := evm.Decode(code)

		fmt.Print(asm.Disassemble(p))

		if disasmDOT == "" {
			return nil
		}

		g := cfg.BuildProgram(ctxOrBackground(cmd.Context()), p, cfg.DefaultConfig())
		src := render.ContractDOT(highlight.Highlight(g, nil), render.Options{Title: "static graph"}).String()

		if err := os.WriteFile(disasmDOT, []byte(src), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", disasmDOT, err)
		}

		log.WithField("blocks", g.NumBlocks()).WithField("edges", g.NumEdges()).Infof("Wrote %s", disasmDOT)

		return nil
	},
}

func init() {
	disasmCmd.Flags().StringVar(&disasmCode, "code", "", "bytecode as 0x hex, or a file holding hex or raw bytes")
	disasmCmd.Flags().StringVar(&disasmDOT, "dot", "", "write the static graph as DOT to this file")

	rootCmd.AddCommand(disasmCmd)
}

// readCode accepts 0x-prefixed hex or a path to a file holding hex text or
// raw bytecode.
func readCode(arg string) ([]byte, error) {
	if arg == "" {
		return nil, errNoCode
	}

	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		return hexutil.Decode(arg)
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read code: %w", err)
	}

	text := string(bytes.TrimSpace(data))
	if !strings.HasPrefix(text, "0x") {
		text = "0x" + text
	}

	if code, err := hexutil.Decode(text); err == nil {
		return code, nil
	}

	return data, nil
}
