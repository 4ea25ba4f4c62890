package msgpack

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/lk2023060901/vserial-go/pkg/buffer/ring"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// StreamDecoder 从分段到达的字节中依次解出完整的值。
// 不完整的值保留在缓冲区中，等待后续数据。StreamDecoder 不是并发安全的。
type StreamDecoder struct {
	s    *Serializer
	buf  *ring.Buffer
	scan frameScanner
}

// NewStreamDecoder 创建一个使用 s 当前配置的流式解码器。
func (s *Serializer) NewStreamDecoder() *StreamDecoder {
	sd := &StreamDecoder{s: s, buf: ring.New(ring.DefaultBufferSize)}
	sd.scan.reset()
	return sd
}

// Write 追加一段输入。
func (sd *StreamDecoder) Write(p []byte) (int, error) {
	return sd.buf.Write(p)
}

// ReadFrom 读取 r 直到 EOF 并追加到缓冲区。
func (sd *StreamDecoder) ReadFrom(r io.Reader) (int64, error) {
	return sd.buf.ReadFrom(r)
}

// Buffered 返回尚未解码的字节数。
func (sd *StreamDecoder) Buffered() int {
	return sd.buf.Buffered()
}

// Next 解出下一个完整的值。ok 为 false 表示需要更多输入。
// 只有整帧到齐后才解码，每个字节只被扫描一次。
// 解码出错时缓冲区保持不变，调用方应当放弃该流。
func (sd *StreamDecoder) Next() (v value.Value, ok bool, err error) {
	n, complete := sd.scan.scan(sd.buf.Peek(0))
	if !complete {
		return nil, false, nil
	}

	head, tail := sd.buf.Peek(n)
	frame := make([]byte, 0, n)
	frame = append(append(frame, head...), tail...)
	v, used, err := decodeBytes(frame, sd.s.Config().Options())
	if err == nil && used != n {
		err = merr.WrapErrMalformedInput(formatName, errors.Newf("frame of %d bytes decoded as %d", n, used))
	}
	sd.s.ObserveDecode(err)
	if err != nil {
		return nil, false, err
	}
	if _, err := sd.buf.Discard(n); err != nil {
		return nil, false, err
	}
	sd.scan.reset()
	return v, true, nil
}

// frameScanner 只读取类型头来确定缓冲区开头第一个值的长度，不解码负载。
// 状态跨调用保留，新到达的字节从上次停下的位置继续扫描。
type frameScanner struct {
	// pos 为下一个待扫描项的偏移，可能越过已缓冲的末尾。
	pos int
	// pending 为尚未扫描的项数，为 0 时帧在 pos 处结束。
	pending int64
}

func (fs *frameScanner) reset() {
	fs.pos, fs.pending = 0, 1
}

// scan 在 head、tail 两段组成的缓冲数据上推进，返回完整帧的长度。
func (fs *frameScanner) scan(head, tail []byte) (int, bool) {
	total := len(head) + len(tail)
	at := func(i int) byte {
		if i < len(head) {
			return head[i]
		}
		return tail[i-len(head)]
	}
	for fs.pending > 0 {
		size, children, ok := itemHeader(at, fs.pos, total)
		if !ok {
			return 0, false
		}
		fs.pos += size
		fs.pending += children - 1
	}
	if fs.pos > total {
		return 0, false
	}
	return fs.pos, true
}

// itemHeader 返回 pos 处一项的头部加负载长度，以及其后紧跟的子项个数。
// 头部尚未到齐时 ok 为 false。非法类型码按一个字节计，由解码器报告错误。
func itemHeader(at func(int) byte, pos, total int) (size int, children int64, ok bool) {
	if pos >= total {
		return 0, 0, false
	}
	c := at(pos)
	length := func(width int) (int, bool) {
		if pos+1+width > total {
			return 0, false
		}
		n := 0
		for i := 1; i <= width; i++ {
			n = n<<8 | int(at(pos+i))
		}
		return n, true
	}
	extType := func(off int) (int64, bool) {
		if pos+off >= total {
			return 0, false
		}
		if int8(at(pos+off)) == extAnchor {
			return 1, true
		}
		return 0, true
	}

	switch {
	case c <= msgpcode.PosFixedNumHigh || c >= msgpcode.NegFixedNumLow:
		return 1, 0, true
	case msgpcode.IsFixedMap(c):
		return 1, 2 * int64(c&0x0f), true
	case msgpcode.IsFixedArray(c):
		return 1, int64(c & 0x0f), true
	case msgpcode.IsFixedString(c):
		return 1 + int(c&0x1f), 0, true
	}

	switch c {
	case msgpcode.Uint8, msgpcode.Int8:
		return 2, 0, true
	case msgpcode.Uint16, msgpcode.Int16:
		return 3, 0, true
	case msgpcode.Uint32, msgpcode.Int32, msgpcode.Float:
		return 5, 0, true
	case msgpcode.Uint64, msgpcode.Int64, msgpcode.Double:
		return 9, 0, true
	case msgpcode.Str8, msgpcode.Bin8, msgpcode.Str16, msgpcode.Bin16, msgpcode.Str32, msgpcode.Bin32:
		width := lengthWidth(c)
		n, ok := length(width)
		return 1 + width + n, 0, ok
	case msgpcode.Array16, msgpcode.Array32:
		width := lengthWidth(c)
		n, ok := length(width)
		return 1 + width, int64(n), ok
	case msgpcode.Map16, msgpcode.Map32:
		width := lengthWidth(c)
		n, ok := length(width)
		return 1 + width, 2 * int64(n), ok
	case msgpcode.FixExt1, msgpcode.FixExt2, msgpcode.FixExt4, msgpcode.FixExt8, msgpcode.FixExt16:
		children, ok := extType(1)
		return 2 + 1<<(c-msgpcode.FixExt1), children, ok
	case msgpcode.Ext8, msgpcode.Ext16, msgpcode.Ext32:
		width := lengthWidth(c)
		n, ok := length(width)
		if !ok {
			return 0, 0, false
		}
		children, ok := extType(1 + width)
		return 2 + width + n, children, ok
	}
	return 1, 0, true
}

func lengthWidth(c byte) int {
	switch c {
	case msgpcode.Str8, msgpcode.Bin8, msgpcode.Ext8:
		return 1
	case msgpcode.Str16, msgpcode.Bin16, msgpcode.Ext16, msgpcode.Array16, msgpcode.Map16:
		return 2
	default:
		return 4
	}
}
