package output

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethpandaops/execution-cfg/pkg/render"
)

type Config struct {
	// Directory is the root every analysis gets a subdirectory in.
	Directory string `yaml:"directory" default:"output"`
	// Render also converts every DOT file to an image with graphviz.
	Render bool `yaml:"render" default:"false"`
	// Format is the image format used when Render is set.
	Format string `yaml:"format" default:"png"`
	// ExecutedOnly leaves unexecuted blocks out of the DOT files.
	ExecutedOnly bool `yaml:"executedOnly" default:"false"`
}

func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.New("directory is required")
	}

	if c.Render && !slices.Contains(render.Formats, c.Format) {
		return fmt.Errorf("%w: %q", render.ErrUnsupportedFormat, c.Format)
	}

	return nil
}
