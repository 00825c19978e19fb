package objhost

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// invoke calls fn with args converted to its parameter types. The first
// non-error result is returned; a trailing error result becomes the error.
func invoke(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	in, err := convertArgs(ft, args)
	if err != nil {
		return nil, err
	}

	out := fn.Call(in)

	var (
		result  any
		callErr error
	)
	n := len(out)
	if n > 0 && ft.Out(n-1) == errorType {
		if e := out[n-1].Interface(); e != nil {
			callErr = e.(error)
		}
		n--
	}
	if n > 0 {
		result = out[0].Interface()
	}
	return result, callErr
}

func convertArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	numIn := ft.NumIn()
	variadic := ft.IsVariadic()

	if (!variadic && len(args) != numIn) || (variadic && len(args) < numIn-1) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrArity, len(args), numIn)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if variadic && i >= numIn-1 {
			pt = ft.In(numIn - 1).Elem()
		} else {
			pt = ft.In(i)
		}

		v, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch pt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrArgType, pt)
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	if v.Type().ConvertibleTo(pt) && sameFamily(v.Kind(), pt.Kind()) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s for %s", ErrArgType, v.Type(), pt)
}

// sameFamily limits conversions to numeric-to-numeric and string-to-string,
// so an int is never silently turned into a one-rune string.
func sameFamily(a, b reflect.Kind) bool {
	return numeric(a) && numeric(b) || a == reflect.String && b == reflect.String
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
