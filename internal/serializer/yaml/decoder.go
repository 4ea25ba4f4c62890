package yaml

import (
	"fmt"
	"math/big"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type decoder struct {
	ctx *serializer.DecodeContext
	// anchors 以锚点节点为键，别名节点通过 Alias 指针找到同一张表。
	anchors map[*yamlv3.Node]*value.Table
}

func newDecoder(opts serializer.Options) *decoder {
	return &decoder{
		ctx:     serializer.NewDecodeContext(opts),
		anchors: make(map[*yamlv3.Node]*value.Table),
	}
}

func (d *decoder) decode(n *yamlv3.Node, level int) (value.Value, error) {
	switch n.Kind {
	case yamlv3.DocumentNode:
		if len(n.Content) == 0 {
			return value.Nil{}, nil
		}
		return d.decode(n.Content[0], level)
	case yamlv3.ScalarNode:
		return d.scalar(n)
	case yamlv3.SequenceNode:
		if err := d.ctx.Enter(level); err != nil {
			return nil, err
		}
		t := d.ctx.NewArray()
		d.anchors[n] = t
		for i, child := range n.Content {
			v, err := d.decode(child, level+1)
			if err != nil {
				return nil, err
			}
			t.Set(value.Number(i+1), v)
		}
		return t, nil
	case yamlv3.MappingNode:
		if err := d.ctx.Enter(level); err != nil {
			return nil, err
		}
		if len(n.Content)%2 != 0 {
			return nil, merr.WrapErrMalformedInput(formatName, nil, "odd mapping content")
		}
		t := d.ctx.NewMap()
		d.anchors[n] = t
		for i := 0; i < len(n.Content); i += 2 {
			k, err := d.decode(n.Content[i], level+1)
			if err != nil {
				return nil, err
			}
			v, err := d.decode(n.Content[i+1], level+1)
			if err != nil {
				return nil, err
			}
			t.Set(k, v)
		}
		return t, nil
	case yamlv3.AliasNode:
		if n.Alias == nil {
			return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("unknown alias %q", n.Value))
		}
		if t, ok := d.anchors[n.Alias]; ok {
			return t, nil
		}
		if n.Alias.Kind == yamlv3.ScalarNode {
			return d.scalar(n.Alias)
		}
		return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("alias %q used before its anchor", n.Value))
	}
	return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("unexpected node kind %d", n.Kind))
}

func (d *decoder) scalar(n *yamlv3.Node) (value.Value, error) {
	switch n.ShortTag() {
	case tagNull:
		return value.Nil{}, nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, merr.WrapErrMalformedInput(formatName, err)
		}
		return value.Bool(b), nil
	case tagInt:
		var i int64
		if err := n.Decode(&i); err == nil {
			return d.ctx.Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return d.ctx.Uint(u), nil
		}
		// 超出 64 位的整数按浮点数处理。
		b, ok := new(big.Float).SetString(n.Value)
		if !ok {
			return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("invalid integer %q", n.Value))
		}
		f, _ := b.Float64()
		return d.ctx.Float(f)
	case tagFloat:
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, merr.WrapErrMalformedInput(formatName, err)
		}
		return d.ctx.Float(f)
	case "!!binary":
		var b []byte
		if err := n.Decode(&b); err != nil {
			return nil, merr.WrapErrMalformedInput(formatName, err)
		}
		return value.String(b), nil
	}
	return value.String(n.Value), nil
}
