package domain

import "testing"

func TestArtifact_CloneIsIndependent(t *testing.T) {
	a := &Artifact{Name: "p.ps1", Content: []byte("abc"), Metadata: map[string]any{"k": "v"}}
	b := a.Clone()
	b.Content[0] = 'z'
	b.SetMeta("k", "changed")

	if string(a.Content) != "abc" || a.Metadata["k"] != "v" {
		t.Errorf("original modified: %q %v", a.Content, a.Metadata)
	}
}

func TestArtifact_Output(t *testing.T) {
	a := &Artifact{Name: "p.ps1", Content: []byte("echo"), Metadata: map[string]any{"format": "ps1"}}
	a.AppendTransform("encoding/base64")
	a.AppendTransform("encoding/hex")

	out := a.Output()
	if out["content"] != "echo" || out["name"] != "p.ps1" || out["format"] != "ps1" {
		t.Errorf("Output() = %v", out)
	}
	transforms, _ := out["transforms"].([]string)
	if len(transforms) != 2 || transforms[1] != "encoding/hex" {
		t.Errorf("transforms = %v", transforms)
	}

	a.Compiled = true
	if _, ok := a.Output()["content"]; ok {
		t.Error("compiled artifact should not expose content in output")
	}
}
