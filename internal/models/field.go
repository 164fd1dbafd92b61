package models

type fieldOp uint8

const (
	fieldUnchanged fieldOp = iota
	fieldSet
	fieldClear
)

// Field is a single column update. The zero value leaves the column untouched,
// Set writes a value and Clear writes NULL.
type Field[T any] struct {
	op    fieldOp
	value T
}

func Set[T any](v T) Field[T] {
	return Field[T]{op: fieldSet, value: v}
}

func Clear[T any]() Field[T] {
	return Field[T]{op: fieldClear}
}

func (f Field[T]) IsSet() bool       { return f.op == fieldSet }
func (f Field[T]) IsCleared() bool   { return f.op == fieldClear }
func (f Field[T]) IsUnchanged() bool { return f.op == fieldUnchanged }
func (f Field[T]) Value() T          { return f.value }

func applyValue[T any](f Field[T], dst *T) {
	switch f.op {
	case fieldSet:
		*dst = f.value
	case fieldClear:
		var zero T
		*dst = zero
	}
}

func applyPointer[T any](f Field[T], dst **T) {
	switch f.op {
	case fieldSet:
		v := f.value
		*dst = &v
	case fieldClear:
		*dst = nil
	}
}

func putColumn[T any](cols map[string]any, name string, f Field[T]) {
	switch f.op {
	case fieldSet:
		cols[name] = f.value
	case fieldClear:
		cols[name] = nil
	}
}
