// Package yaml 实现 YAML 格式的宿主值编解码，共享与环形引用以锚点和别名表示。
package yaml

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const formatName = "yaml"

// Options 用于构造 Serializer 的依赖注入参数。
type Options = serializer.BaseOptions

// Serializer 基于 gopkg.in/yaml.v3 的节点树实现 YAML 编解码。
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
		buf       bytes.Buffer
		renderErr error
	)
	em := newEmitter(s.Config().Options().EncodeNumberPrecision)
	err := s.Encode(v, em, func() int {
		renderErr = render(&buf, em.root)
		return buf.Len()
	})
	if err != nil {
		return nil, err
	}
	if renderErr != nil {
		return nil, merr.WrapErrIoFailed(formatName, renderErr)
	}
	return buf.Bytes(), nil
}

func render(w io.Writer, root *yamlv3.Node) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

// Unmarshal 解码单个 YAML 文档，多于一个文档时报错。
func (s *Serializer) Unmarshal(data []byte) (value.Value, error) {
	v, err := s.unmarshal(data)
	s.ObserveDecode(err)
	return v, err
}

func (s *Serializer) unmarshal(data []byte) (value.Value, error) {
	dec := yamlv3.NewDecoder(bytes.NewReader(data))
	var doc yamlv3.Node
	if err := dec.Decode(&doc); err != nil {
		return nil, merr.WrapErrMalformedInput(formatName, err)
	}
	var extra yamlv3.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, merr.WrapErrTrailingData(formatName, 1, "additional document")
	}

	d := newDecoder(s.Config().Options())
	return d.decode(&doc, 0)
}
