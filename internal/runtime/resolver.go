package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/risor-io/risor/object"
)

// Fallback is the resolver a ScriptResolver defers to. It is satisfied by
// resolve.SearchPath.
type Fallback interface {
	ResolveImport(name, currentFile string) (string, bool)
	ResolveInclude(name, currentFile string) (string, bool)
	AvailableImports(currentFile string) []string
	LanguageVersion(file string) string
}

// Script request kinds, exposed to scripts as the global "kind".
const (
	KindImport  = "import"
	KindInclude = "include"
	KindVersion = "version"
)

// DefaultScriptTimeout bounds a single resolver script evaluation.
const DefaultScriptTimeout = 2 * time.Second

// ScriptResolver lets a Risor script override import, include and language
// version resolution. Each request evaluates the script with these globals:
//
//	kind          "import", "include" or "version"
//	name          module or file name being resolved ("" for version)
//	current_file  the file containing the statement
//	fallback      the fallback resolver's answer, or nil
//
// The value of the script's last expression decides the outcome: a
// non-empty string is used as the answer, nil keeps the fallback answer and
// false marks the name unresolved. A failing script logs a warning and the
// fallback answer is used.
type ScriptResolver struct {
	rt       *Runtime
	label    string
	source   string
	fallback Fallback
	timeout  time.Duration
	logger   *slog.Logger
}

// ScriptResolverOption configures a ScriptResolver.
type ScriptResolverOption func(*ScriptResolver)

// WithScriptTimeout bounds each evaluation.
func WithScriptTimeout(d time.Duration) ScriptResolverOption {
	return func(s *ScriptResolver) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScriptResolver loads scriptPath through rt and returns a resolver that
// consults it before fallback.
func NewScriptResolver(rt *Runtime, scriptPath string, fallback Fallback, opts ...ScriptResolverOption) (*ScriptResolver, error) {
	src, err := rt.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return newScriptResolver(rt, scriptPath, src, fallback, opts), nil
}

// NewSourceResolver is NewScriptResolver for inline script source.
func NewSourceResolver(rt *Runtime, source string, fallback Fallback, opts ...ScriptResolverOption) *ScriptResolver {
	return newScriptResolver(rt, "<inline>", source, fallback, opts)
}

func newScriptResolver(rt *Runtime, label, src string, fallback Fallback, opts []ScriptResolverOption) *ScriptResolver {
	s := &ScriptResolver{
		rt:       rt,
		label:    label,
		source:   src,
		fallback: fallback,
		timeout:  DefaultScriptTimeout,
		logger:   rt.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveImport implements the resolver contract.
func (s *ScriptResolver) ResolveImport(name, currentFile string) (string, bool) {
	path, ok := s.fallback.ResolveImport(name, currentFile)
	return s.decide(KindImport, name, currentFile, path, ok)
}

// ResolveInclude implements the resolver contract.
func (s *ScriptResolver) ResolveInclude(name, currentFile string) (string, bool) {
	path, ok := s.fallback.ResolveInclude(name, currentFile)
	return s.decide(KindInclude, name, currentFile, path, ok)
}

// AvailableImports is answered by the fallback resolver.
func (s *ScriptResolver) AvailableImports(currentFile string) []string {
	return s.fallback.AvailableImports(currentFile)
}

// LanguageVersion lets the script override the fallback version.
func (s *ScriptResolver) LanguageVersion(file string) string {
	def := s.fallback.LanguageVersion(file)
	if v, ok := s.decide(KindVersion, "", file, def, def != ""); ok {
		return v
	}
	return def
}

func (s *ScriptResolver) decide(kind, name, currentFile, def string, defOK bool) (string, bool) {
	result, err := s.run(kind, name, currentFile, def, defOK)
	if err != nil {
		s.logger.Warn("resolver script failed, using fallback",
			"script", s.label, "kind", kind, "name", name, "file", currentFile, "error", err)
		return def, defOK
	}

	switch v := result.(type) {
	case nil:
		return def, defOK
	case *object.String:
		if v.Value() == "" {
			return def, defOK
		}
		return v.Value(), true
	case *object.Bool:
		if !v.Value() {
			return "", false
		}
		return def, defOK
	}
	if result.Type() == object.NIL {
		return def, defOK
	}
	s.logger.Warn("resolver script returned unsupported value, using fallback",
		"script", s.label, "kind", kind, "type", string(result.Type()))
	return def, defOK
}

func (s *ScriptResolver) run(kind, name, currentFile, def string, defOK bool) (object.Object, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var fallback object.Object = object.Nil
	if defOK {
		fallback = object.NewString(def)
	}
	result, err := s.rt.eval(ctx, s.label, s.source, map[string]any{
		"kind":         object.NewString(kind),
		"name":         object.NewString(name),
		"current_file": object.NewString(currentFile),
		"fallback":     fallback,
	})
	if err != nil {
		return nil, err
	}
	if errObj, ok := result.(*object.Error); ok {
		return nil, fmt.Errorf("runtime: script %s: %s", s.label, errObj.Inspect())
	}
	return result, nil
}
