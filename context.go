package zeroconf

import (
	"fmt"
	"reflect"
)

// BoxedContext carries arbitrary user state through the native layer up to
// the callbacks. The dynamic type of the value is kept alongside it so that
// a mismatching UnwrapAs can be detected instead of misinterpreting the value.
type BoxedContext struct {
	value any
	typ   reflect.Type
}

// WrapContext boxes v. A nil v yields a nil box.
func WrapContext(v any) *BoxedContext {
	if v == nil {
		return nil
	}

	return &BoxedContext{value: v, typ: reflect.TypeOf(v)}
}

// UnwrapAs recovers the boxed value as T. It returns false when the box is
// nil or holds a value that is not a T, it never panics.
func UnwrapAs[T any](b *BoxedContext) (T, bool) {
	var zero T
	if b == nil {
		return zero, false
	}

	want := reflect.TypeFor[T]()
	if want.Kind() != reflect.Interface && want != b.typ {
		return zero, false
	}

	v, ok := b.value.(T)
	return v, ok
}

// Type returns the dynamic type of the boxed value.
func (b *BoxedContext) Type() reflect.Type {
	if b == nil {
		return nil
	}

	return b.typ
}

func (b *BoxedContext) String() string {
	if b == nil {
		return "BoxedContext(nil)"
	}

	return fmt.Sprintf("BoxedContext(%s)", b.typ)
}
