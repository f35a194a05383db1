package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindIndexOutOfRange, "delete", "index %d out of range [0, %d)", 5, 2)
	wrapped := fmt.Errorf("handle message: %w", err)

	assert.Equal(t, KindIndexOutOfRange, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindIndexOutOfRange))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindIndexOutOfRange}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindDecode}))
	assert.Equal(t, "delete: IndexOutOfRange: index 5 out of range [0, 2)", err.Error())

	assert.Equal(t, KindInternal, KindOf(io.EOF))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindUpstream, "upload", nil))

	err := Wrap(KindUpstream, "upload", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestRejects(t *testing.T) {
	for kind := range KindMap {
		assert.Equal(t, kind != KindInternal, kind.Rejects(), kind.String())
	}
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
