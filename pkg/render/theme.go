package render

import (
	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
)

// Theme is the palette used for DOT output.
type Theme struct {
	Background string
	Foreground string
	Font       string
	Block      string
	Unexecuted string
	Call       string
	Tags       map[highlight.Tag]string
	Edges      map[cfg.EdgeKind]string
}

// TokyoNight is the default dark palette.
var TokyoNight = Theme{
	Background: "#1a1b26",
	Foreground: "#c0caf5",
	Font:       "monospace",
	Block:      "#24283b",
	Unexecuted: "#565f89",
	Call:       "#7aa2f7",
	Tags: map[highlight.Tag]string{
		highlight.TagStateMutating: "#f7768e",
		highlight.TagArithmetic:    "#ff9e64",
		highlight.TagExecutedPlain: "#9ece6a",
	},
	Edges: map[cfg.EdgeKind]string{
		cfg.EdgeDirect:      "#7dcfff",
		cfg.EdgeIndirect:    "#bb9af7",
		cfg.EdgeFallthrough: "#c0caf5",
	},
}

// fill returns the node fill colour for a tag, or the default block colour.
func (t Theme) fill(tag highlight.Tag) string {
	if c, ok := t.Tags[tag]; ok {
		return c
	}

	return t.Block
}

// fontColor keeps labels readable on the light tag colours.
func (t Theme) fontColor(tag highlight.Tag) string {
	if _, ok := t.Tags[tag]; ok {
		return t.Background
	}

	return t.Foreground
}
