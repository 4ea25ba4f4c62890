// Package json 实现 JSON 格式的宿主值编解码。JSON 不支持引用。
package json

import (
	"github.com/bytedance/sonic"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const formatName = "json"

// Options 用于构造 Serializer 的依赖注入参数。
type Options = serializer.BaseOptions

// Serializer 使用 json-iterator 写出 JSON，解码前以 sonic 校验输入。
type Serializer struct {
	*serializer.Base
}

// 编译期断言：确保 Serializer 实现了 serializer.Serializer 接口。
var _ serializer.Serializer = (*Serializer)(nil)

func New(opts Options) *Serializer {
	return &Serializer{Base: serializer.NewBase(formatName, opts)}
}

func (s *Serializer) Marshal(v value.Value) ([]byte, error) {
	em := newEmitter(s.Config().Options().EncodeNumberPrecision)
	if err := s.Encode(v, em, func() int { return len(em.bytes()) }); err != nil {
		return nil, err
	}
	out := make([]byte, len(em.bytes()))
	copy(out, em.bytes())
	return out, nil
}

func (s *Serializer) Unmarshal(data []byte) (value.Value, error) {
	v, err := s.unmarshal(data)
	s.ObserveDecode(err)
	return v, err
}

func (s *Serializer) unmarshal(data []byte) (value.Value, error) {
	if !sonic.Valid(data) {
		return nil, merr.WrapErrMalformedInput(formatName, nil, "invalid json document")
	}
	iter := api.BorrowIterator(data)
	defer api.ReturnIterator(iter)

	d := newDecoder(iter, s.Config().Options())
	return d.decode(0)
}
