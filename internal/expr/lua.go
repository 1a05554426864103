package expr

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"
)

type (
	// LuaEnv runs Lua expressions on a pool of sandboxed states
	LuaEnv struct {
		states chan *lua.State
	}

	compiledLua struct {
		bytecode []byte
	}
)

const (
	luaStatePoolSize    = 16
	luaGlobalTableIndex = -2
	luaTableIndex       = -3
	luaArgLocalTemplate = "local %s = select(%d, ...)"
	luaReturnTemplate   = "return (%s)"
	luaGlobalTableName  = "_G"
	luaChunkName        = "expression"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
	ErrLuaCompiled  = errors.New("expected compiled lua")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a Lua environment. A script that is a bare expression
// has its value returned; otherwise it must return a value itself
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		states: make(chan *lua.State, luaStatePoolSize),
	}
}

// Compile turns the script into Lua bytecode taking names as arguments
func (e *LuaEnv) Compile(script string, names []string) (Compiled, error) {
	L := newSandbox()
	locals := make([]string, len(names))
	for i, name := range names {
		locals[i] = fmt.Sprintf(luaArgLocalTemplate, name, i+1)
	}
	prelude := strings.Join(locals, "\n")

	src := prelude + "\n" + fmt.Sprintf(luaReturnTemplate, script)
	if err := lua.LoadString(L, src); err != nil {
		L.SetTop(0)
		src = prelude + "\n" + script
		if err := lua.LoadString(L, src); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
		}
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	return &compiledLua{bytecode: buf.Bytes()}, nil
}

// Run executes compiled bytecode with the scope values as arguments
func (e *LuaEnv) Run(c Compiled, names []string, s Scope) (any, error) {
	proc, ok := c.(*compiledLua)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrLuaCompiled, c)
	}

	L := e.getState()
	defer e.returnState(L)

	err := L.Load(bytes.NewReader(proc.bytecode), luaChunkName, "b")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	for _, name := range names {
		goToLua(L, s[name])
	}
	if err := L.ProtectedCall(len(names), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}
	return luaToGo(L, -1), nil
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.states:
		return L
	default:
		return newSandbox()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case e.states <- L:
	default:
	}
}

func newSandbox() *lua.State {
	L := lua.NewState()
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
	return L
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		L.PushNil()
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		L.CreateTable(len(v), 0)
		for i, item := range v {
			L.PushInteger(i + 1)
			goToLua(L, item)
			L.SetTable(luaTableIndex)
		}
	case map[string]any:
		L.CreateTable(0, len(v))
		for k, item := range v {
			L.PushString(k)
			goToLua(L, item)
			L.SetTable(luaTableIndex)
		}
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToGo(L, index)
	default:
		return nil
	}
}

func luaTableToGo(L *lua.State, index int) any {
	abs := L.AbsIndex(index)
	length := 0
	isArray := true

	L.PushNil()
	for L.Next(abs) {
		if L.TypeOf(-2) != lua.TypeNumber {
			isArray = false
		}
		length++
		L.Pop(1)
	}

	if isArray && length > 0 {
		res := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(abs, i)
			res[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return res
	}

	res := map[string]any{}
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		res[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return res
}
