package yaml

import (
	"strconv"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	tagNull  = "!!null"
	tagBool  = "!!bool"
	tagInt   = "!!int"
	tagFloat = "!!float"
	tagStr   = "!!str"
	tagSeq   = "!!seq"
	tagMap   = "!!map"
)

// emitter 构建 yaml.v3 节点树，锚点与别名直接映射为节点属性。
type emitter struct {
	precision int
	root      *yamlv3.Node
	stack     []*yamlv3.Node
	anchors   map[string]*yamlv3.Node
}

var _ serializer.Emitter = (*emitter)(nil)

func newEmitter(precision int) *emitter {
	return &emitter{precision: precision, anchors: make(map[string]*yamlv3.Node)}
}

func (e *emitter) References() bool { return true }

func (e *emitter) push(n *yamlv3.Node) {
	if len(e.stack) == 0 {
		e.root = n
		return
	}
	parent := e.stack[len(e.stack)-1]
	parent.Content = append(parent.Content, n)
}

func scalar(tag, text string) *yamlv3.Node {
	return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: tag, Value: text}
}

// formatFloat 以 precision 位有效数字输出，非有限值使用 YAML 的 .nan/.inf 写法。
func formatFloat(f float64, precision int) string {
	switch text := value.FormatNumber(f, precision); text {
	case "nan":
		return ".nan"
	case "inf":
		return ".inf"
	case "-inf":
		return "-.inf"
	default:
		return text
	}
}

func (e *emitter) Scalar(f *serializer.Field) error {
	switch f.Type {
	case serializer.FieldNil:
		e.push(scalar(tagNull, "null"))
	case serializer.FieldBool:
		e.push(scalar(tagBool, strconv.FormatBool(f.Bool)))
	case serializer.FieldInt:
		e.push(scalar(tagInt, strconv.FormatInt(f.Int, 10)))
	case serializer.FieldUint:
		e.push(scalar(tagInt, strconv.FormatUint(f.Uint, 10)))
	case serializer.FieldDouble:
		e.push(scalar("", formatFloat(f.Double, e.precision)))
	case serializer.FieldFloat:
		e.push(scalar("", formatFloat(float64(f.Float), e.precision)))
	case serializer.FieldStr:
		e.push(scalar(tagStr, f.Str))
	case serializer.FieldExt:
		return e.ext(f)
	}
	return nil
}

// ext 以纯文本写出扩展对象：十进制数按数字，其余按字符串。
func (e *emitter) ext(f *serializer.Field) error {
	switch v := f.Value.(type) {
	case value.Decimal:
		e.push(scalar("", v.String()))
	case value.UUID:
		e.push(scalar(tagStr, v.String()))
	case value.Datetime:
		if err := v.Validate(); err != nil {
			return err
		}
		e.push(scalar(tagStr, v.String()))
	case *value.Error:
		e.push(scalar(tagStr, v.Message))
	default:
		return merr.WrapErrUnsupportedType(value.TypeOf(f.Value).String(), "yaml")
	}
	return nil
}

func (e *emitter) begin(kind yamlv3.Kind, tag string, f *serializer.Field, anchor string) {
	n := &yamlv3.Node{Kind: kind, Tag: tag, Anchor: anchor}
	if f.Compact {
		n.Style = yamlv3.FlowStyle
	}
	if anchor != "" {
		e.anchors[anchor] = n
	}
	e.push(n)
	e.stack = append(e.stack, n)
}

func (e *emitter) BeginArray(f *serializer.Field, anchor string) error {
	e.begin(yamlv3.SequenceNode, tagSeq, f, anchor)
	return nil
}

func (e *emitter) BeginMap(f *serializer.Field, anchor string) error {
	e.begin(yamlv3.MappingNode, tagMap, f, anchor)
	return nil
}

func (e *emitter) End() error {
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *emitter) Alias(anchor string) error {
	e.push(&yamlv3.Node{Kind: yamlv3.AliasNode, Value: anchor, Alias: e.anchors[anchor]})
	return nil
}
