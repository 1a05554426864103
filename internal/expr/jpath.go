package expr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// JPathEnv evaluates gjson path queries against the scope rendered as a
// JSON document. A path that matches nothing evaluates to nil
type JPathEnv struct{}

var (
	ErrJPathCompile  = errors.New("jpath compile error")
	ErrJPathCompiled = errors.New("expected jpath path")
)

type jpathQuery string

// NewJPathEnv creates a JPath environment
func NewJPathEnv() *JPathEnv {
	return &JPathEnv{}
}

// Compile accepts any non-empty path. gjson reports a malformed path as a
// missing value rather than an error
func (e *JPathEnv) Compile(script string, _ []string) (Compiled, error) {
	if script == "" {
		return nil, fmt.Errorf("%w: %q", ErrJPathCompile, script)
	}
	return jpathQuery(script), nil
}

// Run applies the path to the scope
func (e *JPathEnv) Run(c Compiled, _ []string, s Scope) (any, error) {
	q, ok := c.(jpathQuery)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrJPathCompiled, c)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(doc, string(q))
	if !res.Exists() {
		return nil, nil
	}
	return normalizeJSON(res.Value()), nil
}
