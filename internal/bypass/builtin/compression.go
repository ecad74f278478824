package builtin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// RegisterCompression registers the compression category.
func RegisterCompression(r *bypass.Registry) {
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "compression",
			Name:        "gzip",
			Description: "Compresses the payload with gzip",
			Authors:     []string{"phoenix"},
			Schema: bypass.Schema{Options: []bypass.Option{
				{
					Name:        "level",
					Description: "-1 (default) or 0-9",
					Type:        bypass.TypeInt,
					Default:     gzip.DefaultCompression,
					Min:         bypass.Bound(gzip.DefaultCompression),
					Max:         bypass.Bound(gzip.BestCompression),
				},
				armorOption,
			}},
		},
		Fn: compressGzip,
	})
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "compression",
			Name:        "zstd",
			Description: "Compresses the payload with zstandard",
			Authors:     []string{"phoenix"},
			Schema: bypass.Schema{Options: []bypass.Option{
				{
					Name:    "level",
					Type:    bypass.TypeEnum,
					Choices: []string{"fastest", "default", "better", "best"},
					Default: "default",
				},
				armorOption,
			}},
		},
		Fn: compressZstd,
	})
	r.MustRegister(bypass.Func{
		Desc: bypass.Descriptor{
			Category:    "compression",
			Name:        "lz4",
			Description: "Compresses the payload with an LZ4 frame",
			Authors:     []string{"phoenix"},
			Schema: bypass.Schema{Options: []bypass.Option{
				{
					Name:        "level",
					Description: "0 (fast) or 1-9",
					Type:        bypass.TypeInt,
					Default:     0,
					Min:         bypass.Bound(0),
					Max:         bypass.Bound(len(lz4Levels) - 1),
				},
				armorOption,
			}},
		},
		Fn: compressLZ4,
	})
}

func compressGzip(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, opts.Int("level"))
	if err != nil {
		return nil, err
	}
	zw.Name = a.Name
	if _, err := zw.Write(a.Content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return emit(a, "compression/gzip", buf.Bytes(), true, opts.String("armor"))
}

func compressZstd(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	ok, level := zstd.EncoderLevelFromString(opts.String("level"))
	if !ok {
		return nil, fmt.Errorf("unknown zstd level %q", opts.String("level"))
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return emit(a, "compression/zstd", enc.EncodeAll(a.Content, nil), true, opts.String("armor"))
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func compressLZ4(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
	n := opts.Int("level")
	if n < 0 || n >= len(lz4Levels) {
		return nil, fmt.Errorf("lz4 level %d out of range 0-9", n)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[n])); err != nil {
		return nil, err
	}
	if _, err := zw.Write(a.Content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return emit(a, "compression/lz4", buf.Bytes(), true, opts.String("armor"))
}
