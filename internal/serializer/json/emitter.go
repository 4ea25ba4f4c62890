package json

import (
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

var api = jsoniter.Config{
	EscapeHTML:  false,
	UseNumber:   true,
	SortMapKeys: false,
}.Froze()

type frame struct {
	object bool
	count  int
	// key 为 true 表示映射中下一个元素是键。
	key bool
}

// emitter 通过 jsoniter.Stream 直接写出 JSON 文本。JSON 无法表达引用，共享值会被重复写出。
type emitter struct {
	stream    *jsoniter.Stream
	precision int
	frames    []frame
}

var _ serializer.Emitter = (*emitter)(nil)

func newEmitter(precision int) *emitter {
	return &emitter{
		stream:    jsoniter.NewStream(api, nil, 512),
		precision: precision,
	}
}

func (e *emitter) References() bool { return false }

// element 在写出值之前处理逗号，返回 true 表示当前位置为映射键。
func (e *emitter) element() bool {
	if len(e.frames) == 0 {
		return false
	}
	top := &e.frames[len(e.frames)-1]
	if top.object {
		if top.key {
			if top.count > 0 {
				e.stream.WriteMore()
			}
			top.count++
			top.key = false
			return true
		}
		top.key = true
		return false
	}
	if top.count > 0 {
		e.stream.WriteMore()
	}
	top.count++
	return false
}

func (e *emitter) Scalar(f *serializer.Field) error {
	if e.element() {
		return e.objectKey(f)
	}
	switch f.Type {
	case serializer.FieldNil:
		e.stream.WriteNil()
	case serializer.FieldBool:
		e.stream.WriteBool(f.Bool)
	case serializer.FieldInt:
		e.stream.WriteInt64(f.Int)
	case serializer.FieldUint:
		e.stream.WriteUint64(f.Uint)
	case serializer.FieldDouble:
		e.stream.WriteRaw(value.FormatNumber(f.Double, e.precision))
	case serializer.FieldFloat:
		e.stream.WriteRaw(value.FormatNumber(float64(f.Float), e.precision))
	case serializer.FieldStr:
		e.stream.WriteString(f.Str)
	case serializer.FieldExt:
		text, err := extText(f)
		if err != nil {
			return err
		}
		e.stream.WriteString(text)
	}
	return e.stream.Error
}

// objectKey 写出映射键，只接受字符串与数字。
func (e *emitter) objectKey(f *serializer.Field) error {
	var key string
	switch f.Type {
	case serializer.FieldStr:
		key = f.Str
	case serializer.FieldInt:
		key = strconv.FormatInt(f.Int, 10)
	case serializer.FieldUint:
		key = strconv.FormatUint(f.Uint, 10)
	case serializer.FieldDouble:
		key = value.FormatNumber(f.Double, e.precision)
	case serializer.FieldFloat:
		key = value.FormatNumber(float64(f.Float), e.precision)
	default:
		return merr.WrapErrUnsupportedType(f.Type.String(), "json object key must be a number or string")
	}
	e.stream.WriteObjectField(key)
	return e.stream.Error
}

func extText(f *serializer.Field) (string, error) {
	switch v := f.Value.(type) {
	case value.Decimal:
		return v.String(), nil
	case value.UUID:
		return v.String(), nil
	case value.Datetime:
		if err := v.Validate(); err != nil {
			return "", err
		}
		return v.String(), nil
	case *value.Error:
		return v.Message, nil
	}
	return "", merr.WrapErrUnsupportedType(value.TypeOf(f.Value).String(), "json")
}

func (e *emitter) BeginArray(f *serializer.Field, _ string) error {
	if e.element() {
		return merr.WrapErrUnsupportedType("array", "json object key must be a number or string")
	}
	e.stream.WriteArrayStart()
	e.frames = append(e.frames, frame{})
	return nil
}

func (e *emitter) BeginMap(f *serializer.Field, _ string) error {
	if e.element() {
		return merr.WrapErrUnsupportedType("map", "json object key must be a number or string")
	}
	e.stream.WriteObjectStart()
	e.frames = append(e.frames, frame{object: true, key: true})
	return nil
}

func (e *emitter) End() error {
	top := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	if top.object {
		e.stream.WriteObjectEnd()
	} else {
		e.stream.WriteArrayEnd()
	}
	return e.stream.Error
}

func (e *emitter) Alias(string) error {
	return merr.WrapErrOperationNotSupported("alias", "json has no references")
}

func (e *emitter) bytes() []byte {
	return e.stream.Buffer()
}
