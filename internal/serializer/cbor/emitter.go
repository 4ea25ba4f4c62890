package cbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/util/typeutil"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// 标签号。28/29 为 value-sharing 标签，0x7d03/0x7d04 为私有标签。
const (
	tagDecimal   uint64 = 4
	tagShareable uint64 = 28
	tagSharedRef uint64 = 29
	tagUUID      uint64 = 37
	tagError     uint64 = 0x7d03
	tagDatetime  uint64 = 0x7d04
)

type array struct {
	items []any
}

type dict struct {
	keys []any
	vals []any
	// seen 记录键的编码结果，重复的键无法写出。
	seen typeutil.Set[string]
}

// shared 为被锚定的容器。首次写出的位置带 tag 28，其余位置为 tag 29。
type shared struct {
	content any
	index   int
}

type frame struct {
	arr  *array
	dict *dict
	// key 为 true 表示映射中下一个元素是键。
	key bool
}

// emitter 先构建中间树，再按最终的写出顺序为共享值编号。
// 映射按键的编码字节排序写出，锚点必须出现在所有引用之前。
type emitter struct {
	root    any
	frames  []frame
	anchors map[string]*shared
}

var _ serializer.Emitter = (*emitter)(nil)

func newEmitter() *emitter {
	return &emitter{anchors: make(map[string]*shared)}
}

func (e *emitter) References() bool { return true }

func (e *emitter) add(v any, scalar bool) error {
	if len(e.frames) == 0 {
		e.root = v
		return nil
	}
	top := &e.frames[len(e.frames)-1]
	switch {
	case top.arr != nil:
		top.arr.items = append(top.arr.items, v)
	case top.key:
		if !scalar {
			return merr.WrapErrUnsupportedType(fmt.Sprintf("%T", v), "cbor map key must be a scalar")
		}
		enc, err := encMode.Marshal(v)
		if err != nil {
			return merr.WrapErrUnsupportedType(fmt.Sprintf("%T", v), err.Error())
		}
		if top.dict.seen.Contain(string(enc)) {
			return merr.WrapErrUnsupportedType("map", fmt.Sprintf("duplicate cbor map key %x", enc))
		}
		top.dict.seen.Insert(string(enc))
		top.dict.keys = append(top.dict.keys, v)
		top.key = false
	default:
		top.dict.vals = append(top.dict.vals, v)
		top.key = true
	}
	return nil
}

func (e *emitter) Scalar(f *serializer.Field) error {
	switch f.Type {
	case serializer.FieldNil:
		return e.add(nil, true)
	case serializer.FieldBool:
		return e.add(f.Bool, true)
	case serializer.FieldInt:
		return e.add(f.Int, true)
	case serializer.FieldUint:
		return e.add(f.Uint, true)
	case serializer.FieldDouble:
		return e.add(f.Double, true)
	case serializer.FieldFloat:
		return e.add(f.Float, true)
	case serializer.FieldStr:
		return e.add(f.Str, true)
	case serializer.FieldExt:
		tag, err := extTag(f)
		if err != nil {
			return err
		}
		return e.add(tag, false)
	}
	return merr.WrapErrUnsupportedType(f.Type.String(), "cbor")
}

func extTag(f *serializer.Field) (cbor.Tag, error) {
	switch v := f.Value.(type) {
	case value.Decimal:
		coef := v.Coefficient()
		var mantissa any = coef
		if coef.IsInt64() {
			mantissa = coef.Int64()
		}
		return cbor.Tag{Number: tagDecimal, Content: []any{int64(v.Exponent()), mantissa}}, nil
	case value.UUID:
		b := make([]byte, len(v))
		copy(b, v[:])
		return cbor.Tag{Number: tagUUID, Content: b}, nil
	case value.Datetime:
		if err := v.Validate(); err != nil {
			return cbor.Tag{}, err
		}
		fields := []any{v.Secs}
		if v.Nsec != 0 || v.TzOffset != 0 {
			fields = append(fields, int64(v.Nsec))
		}
		if v.TzOffset != 0 {
			fields = append(fields, int64(v.TzOffset))
		}
		return cbor.Tag{Number: tagDatetime, Content: fields}, nil
	case *value.Error:
		return cbor.Tag{Number: tagError, Content: []any{v.Class, v.Message, uint64(v.Code)}}, nil
	}
	return cbor.Tag{}, merr.WrapErrUnsupportedType(value.TypeOf(f.Value).String(), "cbor extension")
}

func (e *emitter) begin(node any, anchor string, fr frame) error {
	v := node
	if anchor != "" {
		s := &shared{content: node, index: -1}
		e.anchors[anchor] = s
		v = s
	}
	if err := e.add(v, false); err != nil {
		return err
	}
	e.frames = append(e.frames, fr)
	return nil
}

func (e *emitter) BeginArray(f *serializer.Field, anchor string) error {
	node := &array{items: make([]any, 0, f.Size)}
	return e.begin(node, anchor, frame{arr: node})
}

func (e *emitter) BeginMap(f *serializer.Field, anchor string) error {
	node := &dict{
		keys: make([]any, 0, f.Size),
		vals: make([]any, 0, f.Size),
		seen: typeutil.NewSet[string](),
	}
	return e.begin(node, anchor, frame{dict: node, key: true})
}

func (e *emitter) End() error {
	e.frames = e.frames[:len(e.frames)-1]
	return nil
}

func (e *emitter) Alias(anchor string) error {
	s, ok := e.anchors[anchor]
	if !ok {
		return merr.WrapErrParameterInvalidMsg("alias to undefined anchor %s", anchor)
	}
	return e.add(s, false)
}

// tree 生成交给 fxamacker/cbor 编码的值。
func (e *emitter) tree() (any, error) {
	b := &builder{}
	return b.build(e.root)
}

type builder struct {
	next int
}

func (b *builder) build(v any) (any, error) {
	switch n := v.(type) {
	case *shared:
		if n.index >= 0 {
			return cbor.Tag{Number: tagSharedRef, Content: uint64(n.index)}, nil
		}
		n.index = b.next
		b.next++
		content, err := b.build(n.content)
		if err != nil {
			return nil, err
		}
		return cbor.Tag{Number: tagShareable, Content: content}, nil
	case *array:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			c, err := b.build(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case *dict:
		return b.buildMap(n)
	}
	return v, nil
}

// buildMap 按键的编码字节序遍历值，与编码器输出的顺序一致。
// 键以指针存放，避免不同类型但相等的 Go 值相互覆盖。
func (b *builder) buildMap(n *dict) (any, error) {
	order, err := sortedKeys(n.keys)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(n.keys))
	for _, i := range order {
		c, err := b.build(n.vals[i])
		if err != nil {
			return nil, err
		}
		key := n.keys[i]
		out[&key] = c
	}
	return out, nil
}
