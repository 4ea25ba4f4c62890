package cbor

import (
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type decoder struct {
	ctx *serializer.DecodeContext
	// anchors 按 tag 28 出现的顺序保存被共享的表。
	anchors []*value.Table
}

func newDecoder(opts serializer.Options) *decoder {
	return &decoder{ctx: serializer.NewDecodeContext(opts)}
}

func (d *decoder) decode(item any, level int) (value.Value, error) {
	switch v := item.(type) {
	case nil:
		return value.Nil{}, nil
	case bool:
		return value.Bool(v), nil
	case uint64:
		return d.ctx.Uint(v), nil
	case int64:
		return d.ctx.Int(v), nil
	case big.Int:
		return d.bigInt(&v)
	case *big.Int:
		return d.bigInt(v)
	case float64:
		return d.ctx.Float(v)
	case float32:
		return d.ctx.Float32(v)
	case string:
		return value.String(v), nil
	case []byte:
		return value.String(v), nil
	case cbor.ByteString:
		return value.String(v), nil
	case time.Time:
		return value.FromTime(v), nil
	case []any, map[any]any:
		return d.container(item, level, false)
	case cbor.Tag:
		return d.tag(v, level)
	}
	return nil, merr.WrapErrMalformedInput(formatName, nil, fmt.Sprintf("unexpected item %T", item))
}

// bigInt 处理超出 64 位整数范围的整数，无法精确表示时退化为浮点数。
func (d *decoder) bigInt(b *big.Int) (value.Value, error) {
	if b.IsInt64() {
		return d.ctx.Int(b.Int64()), nil
	}
	if b.IsUint64() {
		return d.ctx.Uint(b.Uint64()), nil
	}
	f, _ := new(big.Float).SetInt(b).Float64()
	return d.ctx.Float(f)
}

// container 解码数组或映射。anchored 为 true 时，表在填充子元素之前登记，
// 使内部的 tag 29 能引用到它。
func (d *decoder) container(item any, level int, anchored bool) (value.Value, error) {
	if err := d.ctx.Enter(level); err != nil {
		return nil, err
	}
	switch v := item.(type) {
	case []any:
		t := d.ctx.NewArray()
		if anchored {
			d.anchors = append(d.anchors, t)
		}
		for i, elem := range v {
			ev, err := d.decode(elem, level+1)
			if err != nil {
				return nil, err
			}
			t.Set(value.Number(i+1), ev)
		}
		return t, nil
	case map[any]any:
		t := d.ctx.NewMap()
		if anchored {
			d.anchors = append(d.anchors, t)
		}
		return t, d.fillMap(t, v, level)
	}
	return nil, merr.WrapErrMalformedExtension("shareable", fmt.Sprintf("shared value must be a container, got %T", item))
}

// fillMap 按键的编码字节序解码值，与写出顺序一致，保证共享编号正确。
func (d *decoder) fillMap(t *value.Table, m map[any]any, level int) error {
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	order, err := sortedKeys(keys)
	if err != nil {
		return merr.WrapErrMalformedInput(formatName, err)
	}
	for _, i := range order {
		k, err := d.decode(keys[i], level+1)
		if err != nil {
			return err
		}
		if _, ok := k.(*value.Table); ok {
			return merr.WrapErrMalformedInput(formatName, nil, "container map key")
		}
		v, err := d.decode(m[keys[i]], level+1)
		if err != nil {
			return err
		}
		t.Set(k, v)
	}
	return nil
}

func (d *decoder) tag(tag cbor.Tag, level int) (value.Value, error) {
	switch tag.Number {
	case tagShareable:
		return d.container(tag.Content, level, true)
	case tagSharedRef:
		index, ok := tag.Content.(uint64)
		if !ok || index >= uint64(len(d.anchors)) {
			return nil, merr.WrapErrMalformedExtension("sharedref", fmt.Sprintf("unknown shared value %v", tag.Content))
		}
		return d.anchors[index], nil
	case tagUUID:
		b, ok := tag.Content.([]byte)
		if !ok {
			return nil, merr.WrapErrMalformedExtension("uuid", fmt.Sprintf("content must be a byte string, got %T", tag.Content))
		}
		u, err := uuid.FromBytes(b)
		if err != nil {
			return nil, merr.WrapErrMalformedExtension("uuid", err.Error())
		}
		return value.UUID(u), nil
	case tagDecimal:
		return unpackDecimal(tag.Content)
	case tagDatetime:
		return unpackDatetime(tag.Content)
	case tagError:
		return unpackError(tag.Content)
	}
	return nil, merr.WrapErrMalformedExtension(fmt.Sprintf("tag %d", tag.Number), "unsupported tag")
}

func fields(ext string, content any, min, max int) ([]any, error) {
	arr, ok := content.([]any)
	if !ok || len(arr) < min || len(arr) > max {
		return nil, merr.WrapErrMalformedExtension(ext, fmt.Sprintf("content must be an array of %d to %d items", min, max))
	}
	return arr, nil
}

func toInt64(item any) (int64, bool) {
	switch v := item.(type) {
	case int64:
		return v, true
	case uint64:
		if v <= 1<<63-1 {
			return int64(v), true
		}
	}
	return 0, false
}

func toBigInt(item any) (*big.Int, bool) {
	switch v := item.(type) {
	case int64:
		return big.NewInt(v), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case big.Int:
		return &v, true
	case *big.Int:
		return v, true
	}
	return nil, false
}

func unpackDecimal(content any) (value.Value, error) {
	arr, err := fields("decimal", content, 2, 2)
	if err != nil {
		return nil, err
	}
	exp, ok := toInt64(arr[0])
	if !ok || exp < -1<<31 || exp > 1<<31-1 {
		return nil, merr.WrapErrMalformedExtension("decimal", fmt.Sprintf("invalid exponent %v", arr[0]))
	}
	mantissa, ok := toBigInt(arr[1])
	if !ok {
		return nil, merr.WrapErrMalformedExtension("decimal", fmt.Sprintf("invalid mantissa %T", arr[1]))
	}
	return value.NewDecimal(decimal.NewFromBigInt(mantissa, int32(exp))), nil
}

func unpackDatetime(content any) (value.Value, error) {
	arr, err := fields("datetime", content, 1, 3)
	if err != nil {
		return nil, err
	}
	var nums [3]int64
	for i, item := range arr {
		n, ok := toInt64(item)
		if !ok {
			return nil, merr.WrapErrMalformedExtension("datetime", fmt.Sprintf("field %d must be an integer", i))
		}
		nums[i] = n
	}
	if nums[1] < 0 || nums[1] > int64(value.MaxNsec) {
		return nil, merr.WrapErrMalformedExtension("datetime", fmt.Sprintf("nsec %d out of range", nums[1]))
	}
	if nums[2] < int64(value.MinTzOffset) || nums[2] > int64(value.MaxTzOffset) {
		return nil, merr.WrapErrMalformedExtension("datetime", fmt.Sprintf("tzoffset %d out of range", nums[2]))
	}
	dt := value.Datetime{Secs: nums[0], Nsec: int32(nums[1]), TzOffset: int16(nums[2])}
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return dt, nil
}

func unpackError(content any) (value.Value, error) {
	arr, err := fields("error", content, 3, 3)
	if err != nil {
		return nil, err
	}
	class, ok1 := arr[0].(string)
	msg, ok2 := arr[1].(string)
	code, ok3 := arr[2].(uint64)
	if !ok1 || !ok2 || !ok3 || code > 1<<32-1 {
		return nil, merr.WrapErrMalformedExtension("error", "content must be [class, message, code]")
	}
	return &value.Error{Class: class, Message: msg, Code: uint32(code)}, nil
}
