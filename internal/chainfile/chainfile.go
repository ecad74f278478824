// Package chainfile reads and writes bypass chains as YAML documents.
//
// A file holds a list of chains under the "chains" key:
//
//	chains:
//	  - name: default-evasion
//	    description: hex then gzip
//	    bypasses:
//	      - category: encoding
//	        name: hex
//	      - category: compression
//	        name: gzip
//	        options:
//	          level: 9
package chainfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// File is the on-disk document.
type File struct {
	Chains []domain.ChainRequest `yaml:"chains"`
}

// Creator stores a chain built from a request.
type Creator interface {
	CreateChain(ctx context.Context, req domain.ChainRequest, actor string) (*domain.Chain, error)
}

// Decode parses a chain file. Unknown keys are rejected so typos surface.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("chainfile: decode: %w", err)
	}
	return &f, nil
}

// Encode writes chains as a chain file.
func Encode(w io.Writer, chains ...*domain.Chain) error {
	f := File{Chains: make([]domain.ChainRequest, 0, len(chains))}
	for _, c := range chains {
		f.Chains = append(f.Chains, Request(c))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("chainfile: encode: %w", err)
	}
	return enc.Close()
}

// Marshal is Encode into a byte slice.
func Marshal(chains ...*domain.Chain) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, chains...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Request converts a stored chain back into the request that recreates it.
func Request(c *domain.Chain) domain.ChainRequest {
	req := domain.ChainRequest{
		Name:        c.Name,
		Description: c.Description,
		Operation:   c.Operation,
		Bypasses:    make([]domain.StepRequest, 0, len(c.Steps)),
	}
	for _, s := range c.Steps {
		req.Bypasses = append(req.Bypasses, domain.StepRequest{
			Category: s.Category,
			Name:     s.Name,
			Options:  s.Options,
		})
	}
	return req
}

// Result summarizes an import.
type Result struct {
	Created []string
	Skipped []string
}

// Import creates every chain in f. Chains whose name is already taken are
// skipped; any other failure aborts the import and is returned with the
// chains created so far.
func Import(ctx context.Context, c Creator, f *File, actor string, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result
	for i, req := range f.Chains {
		chain, err := c.CreateChain(ctx, req, actor)
		if err != nil {
			var oe *domain.OptionError
			if errors.As(err, &oe) && oe.Field == "name" && oe.Module == "" && strings.TrimSpace(req.Name) != "" {
				logger.Info("chain already present, skipping",
					slog.String("chain", req.Name))
				res.Skipped = append(res.Skipped, req.Name)
				continue
			}
			return res, fmt.Errorf("chainfile: chain %d (%q): %w", i+1, req.Name, err)
		}
		res.Created = append(res.Created, chain.Name)
	}
	logger.Info("chains imported",
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

// ImportFile reads path and imports it.
func ImportFile(ctx context.Context, c Creator, path, actor string, logger *slog.Logger) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("chainfile: %w", err)
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return Result{}, err
	}
	return Import(ctx, c, f, actor, logger)
}
