package builtin

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// RegisterEncoding registers the encoding category.
func RegisterEncoding(r *bypass.Registry) {
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "encoding",
			Name:        "base64",
			Description: "Encodes the payload as base64",
			Authors:     []string{"phoenix"},
			Schema: bypass.Schema{Options: []bypass.Option{{
				Name:    "variant",
				Type:    bypass.TypeEnum,
				Choices: []string{"std", "url", "raw-std", "raw-url"},
				Default: "std",
			}}},
		},
		Fn: encodeBase64,
	})
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "encoding",
			Name:        "hex",
			Description: "Encodes the payload as hexadecimal",
			Authors:     []string{"phoenix"},
			Schema: bypass.Schema{Options: []bypass.Option{{
				Name:    "uppercase",
				Type:    bypass.TypeBool,
				Default: false,
			}}},
		},
		Fn: encodeHex,
	})
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "encoding",
			Name:        "xor",
			Description: "XORs the payload with a repeating key",
			Authors:     []string{"phoenix"},
			Notes:       "Output is binary unless armored.",
			Schema: bypass.Schema{Options: []bypass.Option{
				{Name: "key", Description: "Key bytes", Type: bypass.TypeString, Required: true},
				armorOption,
			}},
		},
		Fn: encodeXOR,
	})
}

var base64Variants = map[string]*base64.Encoding{
	"std":     base64.StdEncoding,
	"url":     base64.URLEncoding,
	"raw-std": base64.RawStdEncoding,
	"raw-url": base64.RawURLEncoding,
}

func encodeBase64(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	enc, ok := base64Variants[opts.String("variant")]
	if !ok {
		enc = base64.StdEncoding
	}
	return emit(a, "encoding/base64", []byte(enc.EncodeToString(a.Content)), false, ArmorNone)
}

func encodeHex(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	s := hex.EncodeToString(a.Content)
	if opts.Bool("uppercase") {
		s = strings.ToUpper(s)
	}
	return emit(a, "encoding/hex", []byte(s), false, ArmorNone)
}

func encodeXOR(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	key := []byte(opts.String("key"))
	if len(key) == 0 {
		return nil, errors.New("xor key must not be empty")
	}
	return emit(a, "encoding/xor", xorBytes(a.Content, key), true, opts.String("armor"))
}

func xorBytes(src, key []byte) []byte {
	out := make([]byte, len(src))
	for i, b := range src {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
