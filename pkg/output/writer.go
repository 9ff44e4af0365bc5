// Package output writes analyses to disk as DOT files and, optionally,
// rendered images.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/render"
	"github.com/ethpandaops/execution-cfg/pkg/stitch"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

const (
	SinkName = "files"

	GlobalFile    = "global.dot"
	CallGraphFile = "callgraph.dot"
	FramesFile    = "frames.dot"
	SummaryFile   = "summary.json"
)

// Writer is an analyzer.Sink that lays an analysis out as
// <dir>/<tx hash>/<address>_<frame>.dot plus the global graphs.
type Writer struct {
	log    logrus.FieldLogger
	config *Config
}

var _ analyzer.Sink = (*Writer)(nil)

func New(log logrus.FieldLogger, config *Config) *Writer {
	return &Writer{
		log:    log.WithField("component", "output"),
		config: config,
	}
}

func (w *Writer) Name() string {
	return SinkName
}

// Dir returns the directory the files of result are written to.
func (w *Writer) Dir(result *analyzer.Result) string {
	name := strings.ToLower(result.TxHash)
	if name == "" {
		name = "trace"
	}

	return filepath.Join(w.config.Directory, name)
}

// FrameFile names the DOT file of one frame.
func FrameFile(f *trace.Frame) string {
	if f.Type.IsCreate() {
		return fmt.Sprintf("create_%d.dot", f.ID)
	}

	return fmt.Sprintf("%s_%d.dot", strings.ToLower(f.Address.Hex()), f.ID)
}

type summary struct {
	TxHash    string         `json:"tx_hash,omitempty"`
	Root      string         `json:"root"`
	Creation  bool           `json:"creation"`
	Steps     int            `json:"steps"`
	Contracts []string       `json:"contracts"`
	Frames    []frameSummary `json:"frames"`
	Stitch    stitch.Report  `json:"stitch"`
}

type frameSummary struct {
	ID              uint32 `json:"id"`
	Address         string `json:"address"`
	CallType        string `json:"call_type,omitempty"`
	File            string `json:"file,omitempty"`
	Steps           int    `json:"steps"`
	ExecutedBlocks  int    `json:"executed_blocks"`
	BlockMismatches int    `json:"block_mismatches"`
	EdgeMismatches  int    `json:"edge_mismatches"`
}

// Write writes every DOT file of result, then renders them if configured.
func (w *Writer) Write(ctx context.Context, result *analyzer.Result) error {
	dir := w.Dir(result)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := make(map[string]string)
	sum := summary{
		TxHash:   result.TxHash,
		Root:     strings.ToLower(result.Root.Hex()),
		Creation: result.IsCreation(),
		Steps:    result.Tree.NumSteps(),
		Stitch:   result.Global.Report,
	}

	for addr := range result.Contracts {
		sum.Contracts = append(sum.Contracts, strings.ToLower(addr.Hex()))
	}

	slices.Sort(sum.Contracts)

	for _, f := range result.Tree.Frames {
		fs := frameSummary{
			ID:       f.ID,
			Address:  strings.ToLower(f.Address.Hex()),
			CallType: string(f.Type),
			Steps:    len(f.Steps),
		}

		if view, ok := result.Views[f.ID]; ok {
			name := FrameFile(f)
			files[name] = render.ContractDOT(view, render.Options{
				Title:        fmt.Sprintf("%s frame %d", fs.Address, f.ID),
				ExecutedOnly: w.config.ExecutedOnly,
			}).String()

			fs.File = name
			fs.ExecutedBlocks = len(view.ExecutedBlocks())
			fs.BlockMismatches = view.BlockMismatches
			fs.EdgeMismatches = view.EdgeMismatches
		}

		sum.Frames = append(sum.Frames, fs)
	}

	files[GlobalFile] = render.GlobalDOT(result.Global, render.Options{
		Title:        result.TxHash,
		ExecutedOnly: w.config.ExecutedOnly,
	}).String()

	files[CallGraphFile], files[FramesFile] = render.LatticeDOT(result.Global, result.TxHash)

	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"dir":   dir,
		"files": len(files) + 1,
	}).Info("Wrote analysis")

	if !w.config.Render {
		return nil
	}

	return w.render(ctx, dir, files)
}

// render converts every DOT file to an image. A missing graphviz install is
// logged once and is not an error.
func (w *Writer) render(ctx context.Context, dir string, files map[string]string) error {
	for name, src := range files {
		path := filepath.Join(dir, strings.TrimSuffix(name, ".dot")+"."+w.config.Format)

		err := render.Image(ctx, src, w.config.Format, path)
		if errors.Is(err, render.ErrGraphvizMissing) {
			w.log.Warn("Graphviz is not installed, skipping image rendering")

			return nil
		}

		if err != nil {
			return err
		}
	}

	return nil
}
