package serializer

import (
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/util/typeutil"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// Emitter 接收编码遍历产生的事件并写出具体格式。
// Map 的键与值按顺序交替出现。
type Emitter interface {
	// References 返回该格式能否表达锚点与别名。
	References() bool
	// Scalar 写出非容器字段（含 Nil 与扩展）。
	Scalar(f *Field) error
	// BeginArray/BeginMap 开始一个容器，anchor 非空时附带锚点定义。
	BeginArray(f *Field, anchor string) error
	BeginMap(f *Field, anchor string) error
	// End 结束最近一个容器。
	End() error
	// Alias 写出对已定义锚点的引用。
	Alias(anchor string) error
}

// EncodeStats 为一次编码的统计。
type EncodeStats struct {
	Anchors int
}

// Encode 对 root 执行完整的编码流程：
// 第一遍解析钩子，第二遍（仅当格式支持引用时）统计引用，最后逐层发射。
// 缓存与锚点表只在本次调用内有效。
func Encode(root value.Value, opts Options, sess SessionOptions, out Emitter) (EncodeStats, error) {
	c := newClassifier(&opts, sess, newRefCache())
	if err := c.preSerialize(root, typeutil.NewSet[value.Value](), 0); err != nil {
		return EncodeStats{}, err
	}

	e := &encoder{c: c, opts: &opts, out: out}
	if out.References() {
		e.anchors = newAnchorTable()
		e.anchors.findReferences(c, root, 0)
	}
	if err := e.encode(root, 0); err != nil {
		return EncodeStats{}, err
	}

	stats := EncodeStats{}
	if e.anchors != nil {
		stats.Anchors = e.anchors.count()
	}
	return stats, nil
}

type encoder struct {
	c       *classifier
	opts    *Options
	out     Emitter
	anchors *anchorTable
}

func (e *encoder) encode(v value.Value, level int) error {
	f, err := e.c.classify(v)
	if err != nil {
		return err
	}
	if f.Type != FieldArray && f.Type != FieldMap {
		return e.out.Scalar(f)
	}

	if level >= e.opts.EncodeMaxDepth {
		if e.opts.EncodeDeepAsNil {
			return e.out.Scalar(&Field{Type: FieldNil})
		}
		return merr.WrapErrDepthExceeded(level, e.opts.EncodeMaxDepth)
	}

	t := f.Value.(*value.Table)
	anchor := ""
	if e.anchors != nil {
		name, action := e.anchors.resolve(t)
		switch action {
		case anchorAlias:
			return e.out.Alias(name)
		case anchorDefine:
			anchor = name
		}
	}

	if f.Type == FieldArray {
		if err := e.out.BeginArray(f, anchor); err != nil {
			return err
		}
		for i := uint32(1); i <= f.Size; i++ {
			if err := e.encode(t.Get(value.Number(i)), level+1); err != nil {
				return err
			}
		}
		return e.out.End()
	}

	if err := e.out.BeginMap(f, anchor); err != nil {
		return err
	}
	t.Range(func(k, v value.Value) bool {
		if err = e.encode(k, level+1); err != nil {
			return false
		}
		err = e.encode(v, level+1)
		return err == nil
	})
	if err != nil {
		return err
	}
	return e.out.End()
}
