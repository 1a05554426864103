// Package expr evaluates the expressions found in process definitions:
// transition conditions, loop and completion conditions, multi-instance
// cardinalities, user filters and task operations
package expr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sync"

	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Scope holds the named values visible to an expression
	Scope map[string]any

	// Evaluator evaluates an expression against a scope
	Evaluator interface {
		Evaluate(ctx context.Context, ex *api.Expression, s Scope) (any, error)
	}

	// EvaluatorFunc adapts a function to the Evaluator interface
	EvaluatorFunc func(
		ctx context.Context, ex *api.Expression, s Scope,
	) (any, error)

	// Environment compiles and runs scripts for one language
	Environment interface {
		// Compile prepares a script whose free variables are names
		Compile(script string, names []string) (Compiled, error)

		// Run executes a compiled script, binding names from the scope
		Run(c Compiled, names []string, s Scope) (any, error)
	}

	// Compiled is the prepared form of a script in any language
	Compiled any

	// Registry dispatches expressions to the environment for their
	// language and caches compiled scripts
	Registry struct {
		envs     map[string]Environment
		compiled sync.Map
	}
)

const (
	LangLua   = "lua"
	LangAle   = "ale"
	LangJPath = "jpath"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported expression language")
	ErrEmptyExpression     = errors.New("expression is empty")
	ErrNotInteger          = errors.New("value is not an integer")
	ErrNotArray            = errors.New("value is not an array")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewRegistry creates a registry with the Lua, Ale, and JPath environments
func NewRegistry() *Registry {
	return &Registry{
		envs: map[string]Environment{
			LangLua:   NewLuaEnv(),
			LangAle:   NewAleEnv(),
			LangJPath: NewJPathEnv(),
		},
	}
}

// Register adds or replaces the environment for a language
func (r *Registry) Register(language string, env Environment) {
	r.envs[language] = env
}

// Get returns the environment for a language
func (r *Registry) Get(language string) (Environment, error) {
	env, ok := r.envs[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return env, nil
}

// Validate compiles an expression without running it
func (r *Registry) Validate(ex *api.Expression, names ...string) error {
	_, _, err := r.compile(ex, slices.Sorted(slices.Values(names)))
	return err
}

// Evaluate compiles (or reuses) and runs an expression. Every failure is
// reported as an api.ErrEvaluation
func (r *Registry) Evaluate(
	ctx context.Context, ex *api.Expression, s Scope,
) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := s.Names()
	env, c, err := r.compile(ex, names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrEvaluation, err)
	}
	res, err := env.Run(c, names, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrEvaluation, err)
	}
	return res, nil
}

func (r *Registry) compile(
	ex *api.Expression, names []string,
) (Environment, Compiled, error) {
	if ex == nil || ex.Script == "" {
		return nil, nil, ErrEmptyExpression
	}
	env, err := r.Get(ex.Language)
	if err != nil {
		return nil, nil, err
	}
	key := cacheKey(ex, names)
	if c, ok := r.compiled.Load(key); ok {
		return env, c, nil
	}
	c, err := env.Compile(ex.Script, names)
	if err != nil {
		return nil, nil, err
	}
	r.compiled.Store(key, c)
	return env, c, nil
}

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(
	ctx context.Context, ex *api.Expression, s Scope,
) (any, error) {
	return f(ctx, ex, s)
}

// Names returns the sorted scope keys that are valid identifiers
func (s Scope) Names() []string {
	res := make([]string, 0, len(s))
	for _, k := range slices.Sorted(maps.Keys(s)) {
		if identifier.MatchString(k) {
			res = append(res, k)
		}
	}
	return res
}

// With returns a copy of the scope with name bound to value
func (s Scope) With(name string, value any) Scope {
	res := maps.Clone(s)
	if res == nil {
		res = Scope{}
	}
	res[name] = value
	return res
}

func cacheKey(ex *api.Expression, names []string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(ex.Language))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(ex.Script))
	for _, n := range names {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(n))
	}
	return hex.EncodeToString(h.Sum(nil))
}
