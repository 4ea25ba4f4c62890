package msgpack

import (
	"strconv"

	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/lk2023060901/vserial-go/internal/serializer"
)

// BufferWriter 为发射器的输出目标，bytes.Buffer 与 ring.Buffer 均满足。
type BufferWriter interface {
	Write(p []byte) (int, error)
	WriteByte(c byte) error
}

type emitter struct {
	w   BufferWriter
	enc *vmsgpack.Encoder
	ext *extWriter
}

var _ serializer.Emitter = (*emitter)(nil)

func newEmitter(w BufferWriter) *emitter {
	return &emitter{
		w:   w,
		enc: vmsgpack.NewEncoder(w),
		ext: newExtWriter(),
	}
}

func (e *emitter) References() bool { return true }

func (e *emitter) Scalar(f *serializer.Field) error {
	switch f.Type {
	case serializer.FieldNil:
		return e.enc.EncodeNil()
	case serializer.FieldBool:
		return e.enc.EncodeBool(f.Bool)
	case serializer.FieldInt:
		return e.enc.EncodeInt(f.Int)
	case serializer.FieldUint:
		return e.enc.EncodeUint(f.Uint)
	case serializer.FieldDouble:
		return e.enc.EncodeFloat64(f.Double)
	case serializer.FieldFloat:
		return e.enc.EncodeFloat32(f.Float)
	case serializer.FieldStr:
		return e.enc.EncodeString(f.Str)
	case serializer.FieldExt:
		id, body, err := e.ext.encode(f)
		if err != nil {
			return err
		}
		return e.writeExt(id, body)
	}
	return nil
}

func (e *emitter) BeginArray(f *serializer.Field, anchor string) error {
	if err := e.anchor(extAnchor, anchor); err != nil {
		return err
	}
	return e.enc.EncodeArrayLen(int(f.Size))
}

func (e *emitter) BeginMap(f *serializer.Field, anchor string) error {
	if err := e.anchor(extAnchor, anchor); err != nil {
		return err
	}
	return e.enc.EncodeMapLen(int(f.Size))
}

// End 无需写出任何内容，容器长度已在头部给出。
func (e *emitter) End() error { return nil }

func (e *emitter) Alias(anchor string) error {
	return e.anchor(extAlias, anchor)
}

func (e *emitter) anchor(ext int8, name string) error {
	if name == "" {
		return nil
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return err
	}
	return e.writeExt(ext, e.ext.ref(id))
}

func (e *emitter) writeExt(id int8, body []byte) error {
	if err := e.enc.EncodeExtHeader(id, len(body)); err != nil {
		return err
	}
	_, err := e.w.Write(body)
	return err
}
