package msgpack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const formatName = "msgpack"

// decoder 解码单个顶层值。锚点表只在本次解码内有效。
type decoder struct {
	src     *bytes.Reader
	dec     *vmsgpack.Decoder
	ctx     *serializer.DecodeContext
	anchors map[uint64]*value.Table
}

func newDecoder(src *bytes.Reader, opts serializer.Options) *decoder {
	return &decoder{
		src:     src,
		dec:     vmsgpack.NewDecoder(src),
		ctx:     serializer.NewDecodeContext(opts),
		anchors: make(map[uint64]*value.Table),
	}
}

// decodeBytes 解码 data 开头的一个值，返回值与已消费的字节数。
func decodeBytes(data []byte, opts serializer.Options) (value.Value, int, error) {
	r := bytes.NewReader(data)
	v, err := newDecoder(r, opts).decode(0)
	return v, len(data) - r.Len(), err
}

func (d *decoder) fail(err error) error {
	return merr.WrapErrMalformedInput(formatName, err)
}

func (d *decoder) decode(level int) (value.Value, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, d.fail(err)
	}

	switch {
	case c == msgpcode.Nil:
		if err := d.dec.DecodeNil(); err != nil {
			return nil, d.fail(err)
		}
		return value.Nil{}, nil
	case c == msgpcode.False || c == msgpcode.True:
		b, err := d.dec.DecodeBool()
		if err != nil {
			return nil, d.fail(err)
		}
		return value.Bool(b), nil
	case isUintCode(c):
		u, err := d.dec.DecodeUint64()
		if err != nil {
			return nil, d.fail(err)
		}
		return d.ctx.Uint(u), nil
	case isIntCode(c):
		i, err := d.dec.DecodeInt64()
		if err != nil {
			return nil, d.fail(err)
		}
		return d.ctx.Int(i), nil
	case c == msgpcode.Float:
		f, err := d.dec.DecodeFloat32()
		if err != nil {
			return nil, d.fail(err)
		}
		return d.ctx.Float32(f)
	case c == msgpcode.Double:
		f, err := d.dec.DecodeFloat64()
		if err != nil {
			return nil, d.fail(err)
		}
		return d.ctx.Float(f)
	case msgpcode.IsString(c) || msgpcode.IsBin(c):
		s, err := d.dec.DecodeString()
		if err != nil {
			return nil, d.fail(err)
		}
		return value.String(s), nil
	case isArray(c), isMap(c):
		return d.decodeContainer(level, nil)
	case msgpcode.IsExt(c):
		return d.decodeExt(level)
	}
	return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("unexpected code %#x", c))
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

// decodeContainer 解码数组或映射。anchor 非空时在读取子节点之前登记，使环可以重建。
func (d *decoder) decodeContainer(level int, anchor *uint64) (value.Value, error) {
	if err := d.ctx.Enter(level); err != nil {
		return nil, err
	}
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, d.fail(err)
	}

	if isArray(c) {
		n, err := d.dec.DecodeArrayLen()
		if err != nil {
			return nil, d.fail(err)
		}
		t := d.ctx.NewArray()
		if anchor != nil {
			d.anchors[*anchor] = t
		}
		for i := 0; i < n; i++ {
			v, err := d.decode(level + 1)
			if err != nil {
				return nil, err
			}
			t.Set(value.Number(i+1), v)
		}
		return t, nil
	}

	if isMap(c) {
		n, err := d.dec.DecodeMapLen()
		if err != nil {
			return nil, d.fail(err)
		}
		t := d.ctx.NewMap()
		if anchor != nil {
			d.anchors[*anchor] = t
		}
		for i := 0; i < n; i++ {
			k, err := d.decode(level + 1)
			if err != nil {
				return nil, err
			}
			v, err := d.decode(level + 1)
			if err != nil {
				return nil, err
			}
			t.Set(k, v)
		}
		return t, nil
	}
	return nil, merr.WrapErrMalformedExtension("anchor", fmt.Sprintf("anchored value must be a container, got code %#x", c))
}

func (d *decoder) decodeExt(level int) (value.Value, error) {
	id, length, err := d.dec.DecodeExtHeader()
	if err != nil {
		return nil, d.fail(err)
	}
	// 声明长度来自输入，分配前先与剩余字节比较。
	if length > d.src.Len() {
		return nil, d.fail(errors.Wrapf(io.ErrUnexpectedEOF, "ext %d declares %d bytes, %d left", id, length, d.src.Len()))
	}
	body := make([]byte, length)
	if err := d.dec.ReadFull(body); err != nil {
		return nil, d.fail(err)
	}

	switch id {
	case extAnchor:
		ref, err := unpackRef(body)
		if err != nil {
			return nil, err
		}
		if _, ok := d.anchors[ref]; ok {
			return nil, merr.WrapErrMalformedExtension("anchor", fmt.Sprintf("anchor %d defined twice", ref))
		}
		return d.decodeContainer(level, &ref)
	case extAlias:
		ref, err := unpackRef(body)
		if err != nil {
			return nil, err
		}
		t, ok := d.anchors[ref]
		if !ok {
			return nil, merr.WrapErrMalformedExtension("alias", fmt.Sprintf("unknown anchor %d", ref))
		}
		return t, nil
	case serializer.ExtDecimal:
		return unpackDecimal(body)
	case serializer.ExtUUID:
		return unpackUUID(body)
	case serializer.ExtError:
		return unpackError(body)
	case serializer.ExtDatetime:
		return unpackDatetime(body)
	}
	return nil, merr.WrapErrMalformedExtension(fmt.Sprintf("%d", id), "unknown extension type")
}

func unpackRef(body []byte) (uint64, error) {
	r := bytes.NewReader(body)
	ref, err := vmsgpack.NewDecoder(r).DecodeUint64()
	if err != nil {
		return 0, malformed("anchor", err)
	}
	if r.Len() != 0 {
		return 0, merr.WrapErrMalformedExtension("anchor", "trailing bytes after anchor id")
	}
	return ref, nil
}
