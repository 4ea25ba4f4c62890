package serializer

import (
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/util/typeutil"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

var (
	arrayHints = typeutil.NewSet("array", "seq", "sequence")
	mapHints   = typeutil.NewSet("map", "mapping")
)

// serializeFunc 返回元表中的替换函数。
func serializeFunc(meta *value.Meta) (value.SerializeFunc, bool) {
	if meta == nil || meta.Serialize == nil {
		return nil, false
	}
	switch fn := meta.Serialize.(type) {
	case value.SerializeFunc:
		return fn, fn != nil
	case func(value.Value) (value.Value, error):
		return fn, fn != nil
	}
	return nil, false
}

// resolve 调用替换钩子，同一身份在一次调用内只执行一次。
func (c *classifier) resolve(obj value.Value, fn value.SerializeFunc) (value.Value, error) {
	if c.cache != nil {
		if res, ok := c.cache.lookup(obj); ok {
			return res, nil
		}
	}
	res, err := fn(obj)
	if err != nil {
		return nil, merr.WrapErrHookFailed(err, value.TypeOf(obj).String())
	}
	if c.cache != nil {
		c.cache.store(obj, res)
	}
	return res, nil
}

// trySerialize 处理表的 __serialize 能力。返回 true 表示 f 已确定。
func (c *classifier) trySerialize(t *value.Table, f *Field, allowHook bool) (bool, error) {
	meta := t.Metatable()
	if meta == nil || meta.Serialize == nil {
		return false, nil
	}

	if hint, ok := meta.Serialize.(string); ok {
		switch {
		case arrayHints.Contain(hint):
			f.Type = FieldArray
			f.Size = uint32(t.MaxN())
		case mapHints.Contain(hint):
			f.Type = FieldMap
			f.Size = uint32(t.Len())
		default:
			return false, merr.WrapErrInvalidSerializeHint(hint)
		}
		f.Compact = len(hint) == 3
		f.Value = t
		return true, nil
	}

	fn, ok := serializeFunc(meta)
	if !ok {
		return false, merr.WrapErrInvalidSerializeHint(meta.Serialize)
	}
	if !allowHook {
		// 替换值自身的钩子不再调用，按普通表处理。
		return false, nil
	}
	res, err := c.resolve(t, fn)
	if err != nil {
		return false, err
	}
	if tbl, ok := res.(*value.Table); ok {
		return true, c.classifyTable(tbl, f, false)
	}
	return true, c.tofield(res, f, false)
}
