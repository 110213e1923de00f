// Package render turns bindings into per-role artifacts. Renderers stage
// everything in memory; nothing reaches disk until the whole compilation
// round has succeeded.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"tpf/internal/model"
)

// Context carries the template-level values every renderer may
// interpolate.
type Context struct {
	AppName     string
	BasePackage string
}

// Artifact is one staged output file: a path relative to the output root
// and its content.
type Artifact struct {
	Path    string
	Content []byte
}

// Staging collects artifacts in memory and flushes them in one pass.
type Staging struct {
	artifacts []Artifact
	index     map[string]int
}

func NewStaging() *Staging {
	return &Staging{index: make(map[string]int)}
}

// Add stages one artifact. A path staged twice is a renderer bug.
func (s *Staging) Add(path string, content []byte) error {
	if path == "" {
		return fmt.Errorf("artifact with empty path")
	}
	if _, dup := s.index[path]; dup {
		return fmt.Errorf("artifact %s staged twice", path)
	}
	s.index[path] = len(s.artifacts)
	s.artifacts = append(s.artifacts, Artifact{Path: path, Content: content})
	return nil
}

// Artifacts returns the staged files in staging order.
func (s *Staging) Artifacts() []Artifact {
	return s.artifacts
}

// Len is the number of staged artifacts.
func (s *Staging) Len() int {
	return len(s.artifacts)
}

// Paths returns the staged paths, sorted.
func (s *Staging) Paths() []string {
	out := make([]string, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a.Path)
	}
	sort.Strings(out)
	return out
}

// Flush writes every staged artifact under root, creating directories as
// needed, and returns the absolute paths written.
func (s *Staging) Flush(root string) ([]string, error) {
	written := make([]string, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		dst := filepath.Join(root, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return written, fmt.Errorf("creating output directory for %s: %w", a.Path, err)
		}
		if err := os.WriteFile(dst, a.Content, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", a.Path, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// Renderer emits the artifacts of one generation target. Renderers never
// mutate the IR or bindings and never call each other.
type Renderer interface {
	Target() model.Target
	Render(ctx Context, b model.Binding, out *Staging) error
}

// Registry maps generation targets to their renderers.
type Registry struct {
	byTarget map[model.Target]Renderer
}

func NewRegistry() *Registry {
	return &Registry{byTarget: make(map[model.Target]Renderer)}
}

// Register adds a renderer; a second renderer for the same target is
// rejected.
func (r *Registry) Register(ren Renderer) error {
	t := ren.Target()
	if _, dup := r.byTarget[t]; dup {
		return fmt.Errorf("renderer for target %s already registered", t)
	}
	r.byTarget[t] = ren
	return nil
}

// Lookup returns the renderer for a target.
func (r *Registry) Lookup(t model.Target) (Renderer, bool) {
	ren, ok := r.byTarget[t]
	return ren, ok
}

// Targets lists the registered targets, sorted.
func (r *Registry) Targets() []model.Target {
	out := make([]model.Target, 0, len(r.byTarget))
	for t := range r.byTarget {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default returns a registry with every built-in renderer registered.
func Default() *Registry {
	r := NewRegistry()
	for _, ren := range []Renderer{
		NewGrpcServerRenderer(),
		NewGrpcClientRenderer(),
		NewRestServerRenderer(),
		NewRestClientRenderer(),
		NewPluginServerRenderer(),
		NewPluginClientRenderer(),
		NewOrchestratorRenderer(),
	} {
		if err := r.Register(ren); err != nil {
			panic(err)
		}
	}
	return r
}

// fileBase converts a step name into its snake_case file stem:
// fetchUser+auditCache becomes fetch_user_audit_cache.
func fileBase(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '+' || r == '-' || r == '.' || r == ' ':
			if !strings.HasSuffix(b.String(), "_") {
				b.WriteRune('_')
			}
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}

// rolePath joins a deployment directory with the artifact's package and
// file name, using forward slashes for staged paths.
func rolePath(dir, pkg, file string) string {
	if pkg == "" {
		return dir + "/" + file
	}
	return dir + "/" + pkg + "/" + file
}
