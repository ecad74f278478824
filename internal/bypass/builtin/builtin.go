// Package builtin holds the bypass modules bundled with the service. They are
// plain byte transformations; each one registers itself through
// RegisterEncoding or RegisterCompression.
package builtin

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// Armor values for modules whose output is binary.
const (
	ArmorNone   = "none"
	ArmorBase64 = "base64"
	ArmorHex    = "hex"
)

var armorOption = bypass.Option{
	Name:        "armor",
	Description: "Text encoding applied to binary output",
	Type:        bypass.TypeEnum,
	Choices:     []string{ArmorNone, ArmorBase64, ArmorHex},
	Default:     ArmorNone,
}

// NewRegistry returns a registry holding every bundled module.
func NewRegistry() *bypass.Registry {
	r := bypass.NewRegistry()
	RegisterEncoding(r)
	RegisterCompression(r)
	return r
}

// emit builds the output artifact of a module. The input is never modified.
// Binary output marks the artifact compiled unless it was armored as text.
func emit(in *domain.Artifact, ref string, content []byte, binary bool, armor string) (*domain.Artifact, error) {
	switch armor {
	case "", ArmorNone:
	case ArmorBase64:
		content = []byte(base64.StdEncoding.EncodeToString(content))
		binary = false
	case ArmorHex:
		content = []byte(hex.EncodeToString(content))
		binary = false
	default:
		return nil, fmt.Errorf("unknown armor %q", armor)
	}

	out := in.Clone()
	out.Content = content
	out.Compiled = in.Compiled || binary
	out.AppendTransform(ref)
	return out, nil
}
