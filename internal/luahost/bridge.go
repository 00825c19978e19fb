package luahost

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value to a Go value. Integral numbers become int64,
// sequences become []any and other tables map[string]any. Class instances
// and functions are returned as the Lua value itself.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if v.Metatable != lua.LNil {
			return v
		}
		if visited[v] {
			return nil
		}
		visited[v] = true
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return v
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	if n := t.Len(); n > 0 {
		count := 0
		t.ForEach(func(_, _ lua.LValue) { count++ })
		if count == n {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
			}
			return arr
		}
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts a Go value to a Lua value. Lua values pass through.
func (r *Runtime) toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := r.L.NewTable()
		for i, e := range val {
			t.RawSetInt(i+1, r.toLua(e))
		}
		return t
	case map[string]any:
		t := r.L.NewTable()
		for k, e := range val {
			t.RawSetString(k, r.toLua(e))
		}
		return t
	default:
		return r.reflectToLua(v)
	}
}

func (r *Runtime) reflectToLua(v any) lua.LValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16:
		return lua.LNumber(rv.Int())
	case reflect.Uint8, reflect.Uint16:
		return lua.LNumber(rv.Uint())
	case reflect.Slice, reflect.Array:
		t := r.L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, r.toLua(rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := r.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(r.toLua(iter.Key().Interface()), r.toLua(iter.Value().Interface()))
		}
		return t
	default:
		ud := r.L.NewUserData()
		ud.Value = v
		return ud
	}
}
