package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"
)

// AleEnv runs Ale expressions compiled into lambdas over their free
// variables
type AleEnv struct {
	env *env.Environment
}

const aleLambdaTemplate = "(lambda (%s) %s)"

var (
	ErrAleCompile      = errors.New("ale compile error")
	ErrAleCall         = errors.New("ale call error")
	ErrAleNotProcedure = errors.New("not a procedure")
)

// NewAleEnv creates an Ale environment with the core library bootstrapped
func NewAleEnv() *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{env: e}
}

// Compile evaluates the script wrapped in a lambda taking names
func (e *AleEnv) Compile(script string, names []string) (Compiled, error) {
	src := fmt.Sprintf(aleLambdaTemplate, strings.Join(names, " "), script)
	return catchPanic(ErrAleCompile, func() (data.Procedure, error) {
		ns := e.env.GetAnonymous()
		res, err := eval.String(ns, data.String(src))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAleCompile, err)
		}
		proc, ok := res.(data.Procedure)
		if !ok {
			return nil, fmt.Errorf("%w, got: %T", ErrAleNotProcedure, res)
		}
		return proc, nil
	})
}

// Run calls the compiled lambda with the scope values
func (e *AleEnv) Run(c Compiled, names []string, s Scope) (any, error) {
	proc, ok := c.(data.Procedure)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrAleNotProcedure, c)
	}
	args := make(data.Vector, len(names))
	for i, name := range names {
		args[i] = goToAle(s[name])
	}
	res, err := catchPanic(ErrAleCall, func() (ale.Value, error) {
		return proc.Call(args...), nil
	})
	if err != nil {
		return nil, err
	}
	return aleToGo(res), nil
}

func goToAle(value any) ale.Value {
	switch v := value.(type) {
	case nil:
		return data.Null
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = goToAle(item)
		}
		return vec
	case map[string]any:
		obj := data.NewObject()
		for k, item := range v {
			pair := data.NewCons(data.Keyword(k), goToAle(item))
			obj = obj.Put(pair).(*data.Object)
		}
		return obj
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func aleToGo(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.Integer:
		return int(v)
	case data.Float:
		return float64(v)
	case data.String:
		return string(v)
	case data.Keyword:
		return string(v)
	case data.Vector:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = aleToGo(item)
		}
		return res
	case *data.Object:
		res := map[string]any{}
		for _, pair := range v.Pairs() {
			key := fmt.Sprintf("%v", aleToGo(pair.Car()))
			res[key] = aleToGo(pair.Cdr())
		}
		return res
	default:
		if value == data.Null {
			return nil
		}
		return fmt.Sprintf("%v", v)
	}
}

func catchPanic[T any](base error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", base, e)
			return
		}
		err = fmt.Errorf("%w: %v", base, r)
	}()
	return fn()
}
