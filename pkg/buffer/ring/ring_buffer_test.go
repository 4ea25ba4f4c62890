package ring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWrapAround(t *testing.T) {
	rb := New(8)
	n, err := rb.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	discarded, err := rb.Discard(4)
	require.NoError(t, err)
	assert.Equal(t, 4, discarded)

	// 写入跨越底层数组末尾。
	_, err = rb.Write([]byte("ghij"))
	require.NoError(t, err)
	assert.Equal(t, []byte("efghij"), rb.Bytes())

	head, tail := rb.Peek(3)
	assert.Equal(t, "efg", string(append(append([]byte{}, head...), tail...)))
	assert.Equal(t, 6, rb.Buffered())
}

func TestBufferGrow(t *testing.T) {
	rb := New(4)
	payload := bytes.Repeat([]byte{0xa5}, 100)
	_, err := rb.Write(payload)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rb.Cap(), 100)
	assert.Equal(t, payload, rb.Bytes())
}

func TestBufferByteIO(t *testing.T) {
	rb := New(0)
	assert.True(t, rb.IsEmpty())
	_, err := rb.ReadByte()
	assert.ErrorIs(t, err, ErrIsEmpty)

	require.NoError(t, rb.WriteByte(0xc0))
	b, err := rb.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xc0), b)
	assert.True(t, rb.IsEmpty())
}

func TestBufferReadFrom(t *testing.T) {
	rb := New(16)
	n, err := rb.ReadFrom(bytes.NewReader([]byte("hello ring")))
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)
	assert.Equal(t, "hello ring", string(rb.Bytes()))
	rb.Reset()
	assert.Equal(t, 0, rb.Buffered())
}

func TestBufferReadAcrossBoundary(t *testing.T) {
	rb := New(8)
	_, _ = rb.Write([]byte("123456"))
	_, _ = rb.Discard(5)
	_, _ = rb.Write([]byte("7890"))
	assert.False(t, rb.IsFull())
	assert.Equal(t, 3, rb.Available())

	p := make([]byte, 4)
	n, err := rb.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(p[:n]))
	assert.Equal(t, 1, rb.Buffered())

	discarded, err := rb.Discard(10)
	require.NoError(t, err)
	assert.Equal(t, 1, discarded)
	assert.True(t, rb.IsEmpty())
}
