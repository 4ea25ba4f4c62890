// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2019 Chao yuepan, Allen Xu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE

// Package ring 提供流式解码使用的环形字节缓冲区：调用方不断追加输入，
// 解码器按完整帧从头部取走数据。
package ring

import (
	"errors"
	"io"
	"math/bits"
)

const (
	// MinRead 为 ReadFrom 每轮至少预留的可写空间。
	MinRead = 512
	// DefaultBufferSize 是缓冲区的默认初始容量。
	DefaultBufferSize   = 1024
	bufferGrowThreshold = 4 * 1024
)

// ErrIsEmpty 表示缓冲区中没有可读数据。
var ErrIsEmpty = errors.New("ring-buffer is empty")

// Buffer 以 head 与 n 描述可读区间 [head, head+n)，容量始终为 2 的幂，
// 下标通过 mask 回绕。
type Buffer struct {
	buf  []byte
	head int
	n    int
}

// New 创建初始容量为 size（向上取整为 2 的幂）的 Buffer，size 为 0 时延迟分配。
func New(size int) *Buffer {
	if size <= 0 {
		return &Buffer{}
	}
	return &Buffer{buf: make([]byte, ceilToPowerOfTwo(size))}
}

func (rb *Buffer) mask(i int) int {
	return i & (len(rb.buf) - 1)
}

// segments 返回从逻辑偏移 off 开始、长度 n 的两段物理切片。
func (rb *Buffer) segments(off, n int) (first, second []byte) {
	if n == 0 {
		return nil, nil
	}
	start := rb.mask(rb.head + off)
	if start+n <= len(rb.buf) {
		return rb.buf[start : start+n], nil
	}
	return rb.buf[start:], rb.buf[:start+n-len(rb.buf)]
}

// Peek 返回最多 n 个待读字节而不移动读位置，n <= 0 时返回全部。
// 数据跨越底层数组末尾时拆成 head 与 tail 两段。
func (rb *Buffer) Peek(n int) (head []byte, tail []byte) {
	if n <= 0 || n > rb.n {
		n = rb.n
	}
	return rb.segments(0, n)
}

// Discard 丢弃至多 n 个待读字节，返回实际丢弃的数量。
func (rb *Buffer) Discard(n int) (discarded int, err error) {
	if n <= 0 {
		return 0, nil
	}
	if n >= rb.n {
		discarded = rb.n
		rb.Reset()
		return discarded, nil
	}
	rb.head = rb.mask(rb.head + n)
	rb.n -= n
	return n, nil
}

// Read 实现 io.Reader，缓冲区为空时返回 ErrIsEmpty。
func (rb *Buffer) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if rb.n == 0 {
		return 0, ErrIsEmpty
	}
	first, second := rb.Peek(len(p))
	n = copy(p, first)
	n += copy(p[n:], second)
	_, _ = rb.Discard(n)
	return n, nil
}

// ReadByte 取出下一个字节。
func (rb *Buffer) ReadByte() (byte, error) {
	if rb.n == 0 {
		return 0, ErrIsEmpty
	}
	b := rb.buf[rb.head]
	_, _ = rb.Discard(1)
	return b, nil
}

// Write 实现 io.Writer，空间不足时扩容，总是写入全部 p。
func (rb *Buffer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	rb.reserve(len(p))
	first, second := rb.segments(rb.n, len(p))
	copy(first, p)
	copy(second, p[len(first):])
	rb.n += len(p)
	return len(p), nil
}

func (rb *Buffer) WriteByte(c byte) error {
	rb.reserve(1)
	rb.buf[rb.mask(rb.head+rb.n)] = c
	rb.n++
	return nil
}

// Buffered 返回待读字节数。
func (rb *Buffer) Buffered() int {
	return rb.n
}

// Cap 返回底层数组容量。
func (rb *Buffer) Cap() int {
	return len(rb.buf)
}

// Available 返回无需扩容即可写入的字节数。
func (rb *Buffer) Available() int {
	return len(rb.buf) - rb.n
}

// Bytes 返回待读数据的连续拷贝，不移动读位置。
func (rb *Buffer) Bytes() []byte {
	if rb.n == 0 {
		return nil
	}
	first, second := rb.Peek(0)
	out := make([]byte, 0, rb.n)
	out = append(out, first...)
	return append(out, second...)
}

// ReadFrom 实现 io.ReaderFrom，读到 io.EOF 时返回 nil。
func (rb *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	for {
		rb.reserve(MinRead)
		free, _ := rb.segments(rb.n, rb.Available())
		m, rerr := r.Read(free)
		if m < 0 {
			panic("ring.Buffer.ReadFrom: reader returned negative count")
		}
		rb.n += m
		n += int64(m)
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

// IsFull 返回是否已无可写空间。
func (rb *Buffer) IsFull() bool {
	return len(rb.buf) > 0 && rb.n == len(rb.buf)
}

func (rb *Buffer) IsEmpty() bool {
	return rb.n == 0
}

// Reset 清空缓冲区，保留已分配的底层数组。
func (rb *Buffer) Reset() {
	rb.head, rb.n = 0, 0
}

// reserve 保证至少还能写入 extra 个字节。小容量时翻倍，超过阈值后每次增长 1/4。
func (rb *Buffer) reserve(extra int) {
	need := rb.n + extra
	size := len(rb.buf)
	if need <= size {
		return
	}
	switch {
	case size == 0:
		size = DefaultBufferSize
	case size < bufferGrowThreshold:
		size *= 2
	default:
		for 0 < size && size < need {
			size += size / 4
		}
	}
	if size < need {
		size = need
	}
	size = ceilToPowerOfTwo(size)

	grown := make([]byte, size)
	first, second := rb.Peek(0)
	copy(grown[copy(grown, first):], second)
	rb.buf, rb.head = grown, 0
}

// ceilToPowerOfTwo 将 n 向上取整为 2 的幂。
func ceilToPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
