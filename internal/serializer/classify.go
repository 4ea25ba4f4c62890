package serializer

import (
	"math"

	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const (
	exp2_63 = 9223372036854775808.0
	exp2_64 = 18446744073709551616.0
)

// Classify 对单个值进行分类。未使用引用缓存，替换钩子会被直接调用。
func Classify(v value.Value, opts Options, sess SessionOptions) (*Field, error) {
	c := newClassifier(&opts, sess, nil)
	return c.classify(v)
}

type classifier struct {
	opts  *Options
	sess  SessionOptions
	cache *refCache
}

func newClassifier(opts *Options, sess SessionOptions, cache *refCache) *classifier {
	return &classifier{opts: opts, sess: sess, cache: cache}
}

func (c *classifier) classify(v value.Value) (*Field, error) {
	f := &Field{}
	if err := c.tofield(v, f, true); err != nil {
		return nil, err
	}
	return f, nil
}

// tofield 填充 f。allowHook 为 false 时不再调用替换钩子（用于钩子的返回值）。
func (c *classifier) tofield(v value.Value, f *Field, allowHook bool) error {
	switch x := v.(type) {
	case nil, value.Nil, value.Null:
		f.setNil()
	case value.Bool:
		f.Type = FieldBool
		f.Bool = bool(x)
	case value.Number:
		return c.classifyNumber(float64(x), f)
	case value.Int64:
		if x >= 0 {
			f.Type = FieldUint
			f.Uint = uint64(x)
		} else {
			f.Type = FieldInt
			f.Int = int64(x)
		}
	case value.Uint64:
		f.Type = FieldUint
		f.Uint = uint64(x)
	case value.Float32:
		f.Type = FieldFloat
		f.Float = float32(x)
		return c.checkNumber(float64(x), f)
	case value.Double:
		f.Type = FieldDouble
		f.Double = float64(x)
		return c.checkNumber(float64(x), f)
	case value.String:
		f.Type = FieldStr
		f.Str = string(x)
		f.Size = uint32(len(x))
	case *value.Table:
		return c.classifyTable(x, f, allowHook)
	case value.Decimal, value.UUID, value.Datetime:
		f.Type = FieldExt
		f.ExtType = x.(value.Object).ExtType()
		f.Value = x
	case *value.Error:
		if c.sess.ErrorMarshaling {
			f.Type = FieldExt
			f.ExtType = ExtError
			f.Value = x
			return nil
		}
		f.Type = FieldStr
		f.Str = x.Message
		f.Size = uint32(len(x.Message))
	case *value.Userdata:
		return c.convertUnknown(x, f, allowHook)
	default:
		return c.convertUnknown(v, f, allowHook)
	}
	return nil
}

// classifyNumber 按整数优先的规则给动态数字定型。
func (c *classifier) classifyNumber(num float64, f *Field) error {
	switch {
	case !math.IsNaN(num) && !math.IsInf(num, 0) && num != math.Trunc(num):
		f.Type = FieldDouble
		f.Double = num
		return nil
	case num >= 0 && num < exp2_64:
		f.Type = FieldUint
		f.Uint = uint64(num)
		return nil
	case num >= -exp2_63 && num < exp2_63:
		f.Type = FieldInt
		f.Int = int64(num)
		return nil
	}
	f.Type = FieldDouble
	f.Double = num
	return c.checkNumber(num, f)
}

func (c *classifier) checkNumber(num float64, f *Field) error {
	if !math.IsNaN(num) && !math.IsInf(num, 0) {
		return nil
	}
	if c.opts.EncodeInvalidNumbers {
		return nil
	}
	if c.opts.EncodeInvalidAsNil {
		f.setNil()
		return nil
	}
	return merr.WrapErrInvalidNumber(num)
}

func (c *classifier) classifyTable(t *value.Table, f *Field, allowHook bool) error {
	if c.opts.EncodeLoadMetatables {
		done, err := c.trySerialize(t, f, allowHook)
		if err != nil || done {
			return err
		}
	}
	return c.inspectTable(t, f)
}

// inspectTable 遍历一次表，判断按数组还是映射编码。
func (c *classifier) inspectTable(t *value.Table, f *Field) error {
	var (
		size  uint64
		max   float64
		isMap bool
	)
	t.Range(func(k, _ value.Value) bool {
		size++
		if isMap {
			return true
		}
		n, ok := k.(value.Number)
		if !ok {
			isMap = true
			return true
		}
		key := float64(n)
		if key != float64(size) && (key < 1 || key != math.Trunc(key)) {
			isMap = true
			return true
		}
		if key > math.MaxUint32 {
			isMap = true
			return true
		}
		if key > max {
			max = key
		}
		return true
	})

	f.Value = t
	if isMap {
		f.Type = FieldMap
		f.Size = uint32(size)
		return nil
	}

	ratio := float64(c.opts.EncodeSparseRatio)
	if ratio > 0 && max > float64(size)*ratio && max > float64(c.opts.EncodeSparseSafe) {
		if !c.opts.EncodeSparseConvert {
			return merr.WrapErrExcessivelySparseArray(size, uint64(max))
		}
		f.Type = FieldMap
		f.Size = uint32(size)
		return nil
	}
	f.Type = FieldArray
	f.Size = uint32(max)
	return nil
}

// convertUnknown 处理没有直接编码方式的值：
// 先尝试对象自带的替换钩子，再依次回退到 tostring、nil，最后报错。
func (c *classifier) convertUnknown(v value.Value, f *Field, allowHook bool) error {
	if ud, ok := v.(*value.Userdata); ok && allowHook && c.opts.EncodeLoadMetatables {
		if fn, ok := serializeFunc(ud.Metatable()); ok {
			res, err := c.resolve(ud, fn)
			if err != nil {
				return err
			}
			return c.tofield(res, f, false)
		}
	}
	if c.opts.EncodeUseTostring {
		s := value.Tostring(v)
		f.Type = FieldStr
		f.Str = s
		f.Size = uint32(len(s))
		return nil
	}
	if c.opts.EncodeInvalidAsNil {
		f.setNil()
		return nil
	}
	return merr.WrapErrUnsupportedType(value.TypeOf(v).String())
}
