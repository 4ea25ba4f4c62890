// Package msgpack 实现 MessagePack 格式的宿主值编解码，支持共享与环形引用。
package msgpack

import (
	"bytes"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// Options 用于构造 Serializer 的依赖注入参数。
type Options = serializer.BaseOptions

// Serializer 使用 vmihailenco/msgpack 的底层编码原语写出 MessagePack。
type Serializer struct {
	*serializer.Base
}

// 编译期断言：确保 Serializer 实现了 serializer.Serializer 接口。
var _ serializer.Serializer = (*Serializer)(nil)

// New 创建一个 MessagePack Serializer。
func New(opts Options) *Serializer {
	return &Serializer{Base: serializer.NewBase(formatName, opts)}
}

func (s *Serializer) Marshal(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(v, newEmitter(&buf), buf.Len); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalTo 将编码结果追加到 w。失败时 w 不会被写入。
func (s *Serializer) MarshalTo(w BufferWriter, v value.Value) error {
	data, err := s.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *Serializer) Unmarshal(data []byte) (value.Value, error) {
	v, n, err := decodeBytes(data, s.Config().Options())
	if err == nil && n != len(data) {
		err = merr.WrapErrTrailingData(formatName, len(data)-n)
	}
	s.ObserveDecode(err)
	if err != nil {
		return nil, err
	}
	return v, nil
}
