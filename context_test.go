//go:build test_unit

package zeroconf

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	mu   sync.Mutex
	name string
}

func TestUnwrapAsMatchingType(t *testing.T) {
	ctx := &testContext{name: "foo"}
	boxed := WrapContext(ctx)

	got, ok := UnwrapAs[*testContext](boxed)
	require.True(t, ok)
	assert.Same(t, ctx, got)
	assert.Equal(t, "*zeroconf.testContext", boxed.Type().String())
}

func TestUnwrapAsWrongType(t *testing.T) {
	boxed := WrapContext(&testContext{})

	_, ok := UnwrapAs[testContext](boxed)
	assert.False(t, ok)

	_, ok = UnwrapAs[string](boxed)
	assert.False(t, ok)

	_, ok = UnwrapAs[*sync.Mutex](boxed)
	assert.False(t, ok)
}

func TestUnwrapAsInterface(t *testing.T) {
	boxed := WrapContext(fmt.Errorf("boom"))

	err, ok := UnwrapAs[error](boxed)
	require.True(t, ok)
	assert.EqualError(t, err, "boom")

	_, ok = UnwrapAs[fmt.Stringer](boxed)
	assert.False(t, ok)

	_, ok = UnwrapAs[any](boxed)
	assert.True(t, ok)
}

func TestUnwrapAsNil(t *testing.T) {
	assert.Nil(t, WrapContext(nil))

	_, ok := UnwrapAs[*testContext](nil)
	assert.False(t, ok)

	var boxed *BoxedContext
	assert.Nil(t, boxed.Type())
	assert.Equal(t, "BoxedContext(nil)", boxed.String())
}
