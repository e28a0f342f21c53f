//go:build !gst

package source

import (
	"log/slog"

	"github.com/mattjoyce/hype/internal/config"
)

func newGst(*slog.Logger, config.SourceConfig) (Source, error) {
	return nil, ErrGstUnavailable
}

// GstAvailable reports whether gst sources can be built.
const GstAvailable = false
