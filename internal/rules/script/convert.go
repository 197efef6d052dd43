package script

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

func str(t *lua.LTable, key string) string {
	v := t.RawGetString(key)
	if v.Type() != lua.LTString {
		return ""
	}
	return lua.LVAsString(v)
}

func num(t *lua.LTable, key string) int {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

func fn(t *lua.LTable, key string) *lua.LFunction {
	f, _ := t.RawGetString(key).(*lua.LFunction)
	return f
}

func strList(t *lua.LTable, key string) []string {
	lt, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	for i := 1; i <= lt.Len(); i++ {
		if s, ok := lt.RawGetInt(i).(lua.LString); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// toLua converts decoded YAML values into Lua values. Map keys are inserted
// in sorted order so scripts observe a stable table layout.
func toLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(t)
	case bool:
		return lua.LBool(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case []string:
		tbl := L.NewTable()
		for _, s := range t {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, e := range t {
			tbl.Append(toLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, t[k]))
		}
		return tbl
	}
	return lua.LString(fmt.Sprint(v))
}
