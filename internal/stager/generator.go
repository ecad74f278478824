// Package stager renders stager records into payload artifacts.
package stager

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// Formats lists the output file formats advertised to clients. The
// generator accepts any extension; these are the ones shipped templates use.
var Formats = []string{"txt", "ps1", "py", "sh", "vbs", "hta", "exe", "dll", "bin"}

// Generator renders a stager's template with its options. For compiled
// stagers the rendered text is base64 and is decoded into the raw binary.
type Generator struct {
	funcs template.FuncMap
}

// NewGenerator creates a generator with the default template functions.
func NewGenerator() *Generator {
	return &Generator{funcs: template.FuncMap{
		"b64":   func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) },
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"quote": func(s string) string { return fmt.Sprintf("%q", s) },
	}}
}

// templateData is the value templates are executed against.
type templateData struct {
	ID        string
	Name      string
	Format    string
	Operation string
	Options   map[string]any
}

// Generate renders s into an artifact. Every failure is a *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, s *domain.Stager) (*domain.Artifact, error) {
	fail := func(err error) (*domain.Artifact, error) {
		return nil, &domain.GenerationError{StagerID: s.ID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if strings.TrimSpace(s.Template) == "" {
		return fail(errors.New("empty template"))
	}

	tmpl, err := template.New(s.Name).Funcs(g.funcs).Option("missingkey=error").Parse(s.Template)
	if err != nil {
		return fail(err)
	}

	data := templateData{ID: s.ID, Name: s.Name, Format: s.Format, Options: s.Options}
	if s.Operation != nil {
		data.Operation = *s.Operation
	}
	if data.Options == nil {
		data.Options = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fail(err)
	}

	content := buf.Bytes()
	if s.Compiled {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buf.String()))
		if err != nil {
			return fail(fmt.Errorf("compiled output is not base64: %w", err))
		}
		content = raw
	}

	a := &domain.Artifact{
		Name:     fileName(s),
		Content:  content,
		Compiled: s.Compiled,
	}
	a.SetMeta("stager", s.ID)
	a.SetMeta("format", s.Format)
	return a, nil
}

func fileName(s *domain.Stager) string {
	name := strings.ReplaceAll(strings.TrimSpace(s.Name), " ", "_")
	if name == "" {
		name = "payload"
	}
	if s.Format == "" {
		return name
	}
	return name + "." + s.Format
}

// Ensure Generator implements the interface.
var _ ports.PayloadGenerator = (*Generator)(nil)
