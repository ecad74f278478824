package domain

import "maps"

// Artifact is a generated payload flowing through a bypass chain.
type Artifact struct {
	// Name is the suggested download filename.
	Name string `json:"name"`
	// Content holds raw bytes for compiled artifacts or source text otherwise.
	Content []byte `json:"-"`
	// Compiled is true for binary output that should be streamed as a file.
	Compiled bool `json:"compiled"`
	// Metadata carries arbitrary structured data produced by the stager and modules.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the content and a shallow copy of the metadata map.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	out := &Artifact{
		Name:     a.Name,
		Compiled: a.Compiled,
		Content:  append([]byte(nil), a.Content...),
	}
	if a.Metadata != nil {
		out.Metadata = maps.Clone(a.Metadata)
	}
	return out
}

// SetMeta records a metadata value, allocating the map on first use.
func (a *Artifact) SetMeta(key string, value any) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = value
}

// AppendTransform records that a module transformed this artifact.
func (a *Artifact) AppendTransform(ref string) {
	var applied []string
	if prev, ok := a.Metadata["transforms"].([]string); ok {
		applied = append(applied, prev...)
	}
	a.SetMeta("transforms", append(applied, ref))
}

// Output is the structured view surfaced to callers for non-compiled artifacts.
func (a *Artifact) Output() map[string]any {
	out := make(map[string]any, len(a.Metadata)+3)
	maps.Copy(out, a.Metadata)
	out["name"] = a.Name
	out["compiled"] = a.Compiled
	if !a.Compiled {
		out["content"] = string(a.Content)
	}
	return out
}
