// Package cbor 实现 CBOR 格式的宿主值编解码。
// 共享与环形引用使用 value-sharing 标签（28/29）表示，映射采用确定性编码。
package cbor

import (
	"bytes"
	"math"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const formatName = "cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// 键可以是数字，解码目标为 any 时使用 map[any]any。
		DefaultMapType: reflect.TypeOf(map[any]any(nil)),
		// 宿主字符串为任意字节序列。
		UTF8:      cbor.UTF8DecodeInvalid,
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
		// 嵌套深度由 decode_max_depth 控制。
		MaxNestedLevels:  65535,
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

// Options 用于构造 Serializer 的依赖注入参数。
type Options = serializer.BaseOptions

// Serializer 使用 fxamacker/cbor 实现 CBOR 编解码。
type Serializer struct {
	*serializer.Base
}

// 编译期断言：确保 Serializer 实现了 serializer.Serializer 接口。
var _ serializer.Serializer = (*Serializer)(nil)

func New(opts Options) *Serializer {
	return &Serializer{Base: serializer.NewBase(formatName, opts)}
}

func (s *Serializer) Marshal(v value.Value) ([]byte, error) {
	var (
		data      []byte
		renderErr error
	)
	em := newEmitter()
	err := s.Encode(v, em, func() int {
		data, renderErr = render(em)
		return len(data)
	})
	if err != nil {
		return nil, err
	}
	if renderErr != nil {
		return nil, merr.WrapErrIoFailed(formatName, renderErr)
	}
	return data, nil
}

func render(em *emitter) ([]byte, error) {
	tree, err := em.tree()
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(tree)
}

// Unmarshal 解码单个 CBOR 数据项，其后不允许有剩余字节。
func (s *Serializer) Unmarshal(data []byte) (value.Value, error) {
	v, err := s.unmarshal(data)
	s.ObserveDecode(err)
	return v, err
}

func (s *Serializer) unmarshal(data []byte) (value.Value, error) {
	var item any
	rest, err := decMode.UnmarshalFirst(data, &item)
	if err != nil {
		return nil, merr.WrapErrMalformedInput(formatName, err)
	}
	if len(rest) > 0 {
		return nil, merr.WrapErrTrailingData(formatName, len(rest))
	}
	d := newDecoder(s.Config().Options())
	return d.decode(item, 0)
}

// sortedKeys 返回键按编码字节序排列后的下标。
func sortedKeys(keys []any) ([]int, error) {
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := encMode.Marshal(k)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bytes.Compare(encoded[order[a]], encoded[order[b]]) < 0
	})
	return order, nil
}
