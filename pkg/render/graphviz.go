package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	ErrGraphvizMissing   = errors.New("graphviz dot executable not found")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Formats lists the image formats Image accepts.
var Formats = []string{"png", "svg", "pdf"}

func supported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}

	return false
}

// Image runs graphviz on src and writes the result to path.
func Image(ctx context.Context, src, format, path string) error {
	if !supported(format) {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFormat, format, strings.Join(Formats, ", "))
	}

	bin, err := exec.LookPath("dot")
	if err != nil {
		return ErrGraphvizMissing
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, bin, "-T"+format, "-o", path)
	cmd.Stdin = strings.NewReader(src)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to render %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
