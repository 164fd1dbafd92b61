package repository

import (
	"reflect"
	"strings"
)

// detach returns a copy of a stored model whose strings own their bytes.
// HTTP frameworks such as fiber hand out strings backed by reused request
// buffers, and the memory store keeps values for longer than a request.
func detach[T any](value T) T {
	v := reflect.ValueOf(&value).Elem()
	detachValue(v)
	return value
}

func detachValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(strings.Clone(v.String()))
		}
	case reflect.Pointer:
		if v.IsNil() || !v.CanSet() {
			return
		}
		fresh := reflect.New(v.Type().Elem())
		fresh.Elem().Set(v.Elem())
		detachValue(fresh.Elem())
		v.Set(fresh)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				detachValue(v.Field(i))
			}
		}
	case reflect.Interface:
		if v.IsNil() || !v.CanSet() {
			return
		}
		inner := reflect.New(v.Elem().Type()).Elem()
		inner.Set(v.Elem())
		detachValue(inner)
		v.Set(inner)
	}
}

func detachKey(key docKey) docKey {
	return docKey{kind: key.kind, id: strings.Clone(key.id)}
}
