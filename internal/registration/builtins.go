// Package registration assembles the module registry served by the process.
package registration

import (
	"log/slog"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/bypass/builtin"
)

// RegisterBuiltins registers every bundled module on r.
func RegisterBuiltins(r *bypass.Registry) {
	RegisterEncodingBuiltins(r)
	RegisterCompressionBuiltins(r)
}

// RegisterEncodingBuiltins registers the encoding category only.
func RegisterEncodingBuiltins(r *bypass.Registry) {
	builtin.RegisterEncoding(r)
}

// RegisterCompressionBuiltins registers the compression category only.
func RegisterCompressionBuiltins(r *bypass.Registry) {
	builtin.RegisterCompression(r)
}

// NewRegistry builds the bundled registry minus the disabled
// "category/name" references. Unknown references are logged and ignored.
func NewRegistry(disabled []string, logger *slog.Logger) *bypass.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	full := bypass.NewRegistry()
	RegisterBuiltins(full)

	for _, ref := range disabled {
		if !full.Has(ref) {
			logger.Warn("disabled bypass is not registered", slog.String("bypass", ref))
		}
	}
	r := full.Without(disabled)
	logger.Debug("bypass registry built",
		slog.Int("modules", r.Len()),
		slog.Int("disabled", full.Len()-r.Len()))
	return r
}
