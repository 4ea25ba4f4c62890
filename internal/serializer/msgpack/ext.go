package msgpack

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

const (
	// extAnchor 的载荷为锚点编号，其后紧跟被锚定的容器。
	extAnchor int8 = 0x10
	// extAlias 的载荷为已定义的锚点编号。
	extAlias int8 = 0x11
)

// DecimalMaxDigits 为十进制扩展允许的最大有效位数。
const DecimalMaxDigits = 38

// 错误扩展的键。
const (
	errorStackKey = 0x00

	errorTypeKey    = 0x00
	errorFileKey    = 0x01
	errorLineKey    = 0x02
	errorMessageKey = 0x03
	errorErrnoKey   = 0x04
	errorCodeKey    = 0x05
)

const (
	decimalPlus      = 0x0c
	decimalMinus     = 0x0d
	decimalAltMinus  = 0x0b
	decimalNibbleMax = 0x09
)

// extWriter 为扩展载荷的暂存区。载荷长度写在头部，因此需要先完整编码。
type extWriter struct {
	buf bytes.Buffer
	enc *vmsgpack.Encoder
}

func newExtWriter() *extWriter {
	w := &extWriter{}
	w.enc = vmsgpack.NewEncoder(&w.buf)
	return w
}

func (w *extWriter) reset() {
	w.buf.Reset()
}

// encode 将扩展对象编码为载荷，返回扩展类型号。
func (w *extWriter) encode(f *serializer.Field) (int8, []byte, error) {
	w.reset()
	var err error
	switch f.ExtType {
	case serializer.ExtDecimal:
		err = packDecimal(w, f.Value.(value.Decimal))
	case serializer.ExtUUID:
		u := f.Value.(value.UUID)
		_, err = w.buf.Write(u[:])
	case serializer.ExtError:
		err = packError(w.enc, f.Value.(*value.Error))
	case serializer.ExtDatetime:
		err = packDatetime(w.enc, f.Value.(value.Datetime))
	default:
		return 0, nil, merr.WrapErrUnsupportedType(value.TypeOf(f.Value).String(), "msgpack extension")
	}
	if err != nil {
		return 0, nil, err
	}
	return f.ExtType, w.buf.Bytes(), nil
}

func (w *extWriter) ref(id uint64) []byte {
	w.reset()
	_ = w.enc.EncodeUint(id)
	return w.buf.Bytes()
}

// packDatetime 写出秒、纳秒与时区偏移，末尾处于默认值的字段省略。
func packDatetime(enc *vmsgpack.Encoder, d value.Datetime) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := enc.EncodeInt(d.Secs); err != nil {
		return err
	}
	if d.Nsec != 0 || d.TzOffset != 0 {
		if err := enc.EncodeUint(uint64(d.Nsec)); err != nil {
			return err
		}
	}
	if d.TzOffset != 0 {
		if err := enc.EncodeInt(int64(d.TzOffset)); err != nil {
			return err
		}
	}
	return nil
}

// unpackDatetime 按声明长度依次读取字段，剩余长度为 0 时其余字段取默认值。
func unpackDatetime(body []byte) (value.Datetime, error) {
	if len(body) == 0 {
		return value.Datetime{}, merr.WrapErrMalformedExtension("datetime", "empty payload")
	}
	r := bytes.NewReader(body)
	dec := vmsgpack.NewDecoder(r)

	var d value.Datetime
	secs, err := decodeSigned(dec, "datetime", "secs")
	if err != nil {
		return value.Datetime{}, err
	}
	if secs < value.MinEpochSecs || secs > value.MaxEpochSecs {
		return value.Datetime{}, merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("secs %d out of range [%d, %d]", secs, value.MinEpochSecs, value.MaxEpochSecs))
	}
	d.Secs = secs
	if r.Len() == 0 {
		return d, nil
	}

	nsec, err := decodeUnsigned(dec, "datetime", "nsec")
	if err != nil {
		return value.Datetime{}, err
	}
	if nsec > uint64(value.MaxNsec) {
		return value.Datetime{}, merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("nsec %d out of range [0, %d]", nsec, value.MaxNsec))
	}
	d.Nsec = int32(nsec)
	if r.Len() == 0 {
		return d, nil
	}

	offset, err := decodeSigned(dec, "datetime", "tzoffset")
	if err != nil {
		return value.Datetime{}, err
	}
	if offset < int64(value.MinTzOffset) || offset > int64(value.MaxTzOffset) {
		return value.Datetime{}, merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("tzoffset %d out of range [%d, %d]", offset, value.MinTzOffset, value.MaxTzOffset))
	}
	d.TzOffset = int16(offset)
	if r.Len() != 0 {
		return value.Datetime{}, merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("%d bytes left after tzoffset", r.Len()))
	}
	return d, nil
}

// packDecimal 写出 scale 与带符号半字节的压缩 BCD。
func packDecimal(w *extWriter, d value.Decimal) error {
	coef := d.Coefficient()
	exp := d.Exponent()
	if exp > 0 {
		coef.Mul(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
		exp = 0
	}
	sign := byte(decimalPlus)
	if coef.Sign() < 0 {
		sign = decimalMinus
		coef.Neg(coef)
	}
	digits := coef.String()
	if len(digits) > DecimalMaxDigits {
		return merr.WrapErrMalformedExtension("decimal",
			fmt.Sprintf("%d digits exceed %d", len(digits), DecimalMaxDigits))
	}

	if err := w.enc.EncodeInt(int64(-exp)); err != nil {
		return err
	}
	nibbles := make([]byte, 0, len(digits)+2)
	if (len(digits)+1)%2 == 1 {
		nibbles = append(nibbles, 0)
	}
	for i := 0; i < len(digits); i++ {
		nibbles = append(nibbles, digits[i]-'0')
	}
	nibbles = append(nibbles, sign)
	for i := 0; i < len(nibbles); i += 2 {
		w.buf.WriteByte(nibbles[i]<<4 | nibbles[i+1])
	}
	return nil
}

func unpackDecimal(body []byte) (value.Decimal, error) {
	r := bytes.NewReader(body)
	dec := vmsgpack.NewDecoder(r)
	scale, err := decodeSigned(dec, "decimal", "scale")
	if err != nil {
		return value.Decimal{}, err
	}
	if scale < -math.MaxInt32 || scale > math.MaxInt32 {
		return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", fmt.Sprintf("scale %d out of int32 range", scale))
	}
	packed := body[len(body)-r.Len():]
	if len(packed) == 0 {
		return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", "missing digits")
	}

	var digits strings.Builder
	for i, b := range packed {
		hi, lo := b>>4, b&0x0f
		if hi > decimalNibbleMax {
			return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", fmt.Sprintf("invalid digit nibble %#x", hi))
		}
		digits.WriteByte('0' + hi)
		if i == len(packed)-1 {
			break
		}
		if lo > decimalNibbleMax {
			return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", fmt.Sprintf("invalid digit nibble %#x", lo))
		}
		digits.WriteByte('0' + lo)
	}

	negative := false
	switch packed[len(packed)-1] & 0x0f {
	case decimalMinus, decimalAltMinus:
		negative = true
	case 0x0a, decimalPlus, 0x0e, 0x0f:
	default:
		return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", "invalid sign nibble")
	}

	text := strings.TrimLeft(digits.String(), "0")
	if len(text) > DecimalMaxDigits {
		return value.Decimal{}, merr.WrapErrMalformedExtension("decimal",
			fmt.Sprintf("%d digits exceed %d", len(text), DecimalMaxDigits))
	}
	coef, ok := new(big.Int).SetString("0"+text, 10)
	if !ok {
		return value.Decimal{}, merr.WrapErrMalformedExtension("decimal", "invalid digits")
	}
	if negative {
		coef.Neg(coef)
	}
	return value.NewDecimal(decimal.NewFromBigInt(coef, int32(-scale))), nil
}

func unpackUUID(body []byte) (value.UUID, error) {
	u, err := uuid.FromBytes(body)
	if err != nil {
		return value.UUID{}, merr.WrapErrMalformedExtension("uuid", err.Error())
	}
	return value.UUID(u), nil
}

// packError 写出错误链，栈顶在前。
func packError(enc *vmsgpack.Encoder, e *value.Error) error {
	stack := e.Stack()
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeUint(errorStackKey); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(stack)); err != nil {
		return err
	}
	for _, item := range stack {
		if err := enc.EncodeMapLen(6); err != nil {
			return err
		}
		fields := []struct {
			key uint64
			put func() error
		}{
			{errorTypeKey, func() error { return enc.EncodeString(item.Class) }},
			{errorFileKey, func() error { return enc.EncodeString(item.File) }},
			{errorLineKey, func() error { return enc.EncodeUint(uint64(item.Line)) }},
			{errorMessageKey, func() error { return enc.EncodeString(item.Message) }},
			{errorErrnoKey, func() error { return enc.EncodeUint(uint64(item.Errno)) }},
			{errorCodeKey, func() error { return enc.EncodeUint(uint64(item.Code)) }},
		}
		for _, field := range fields {
			if err := enc.EncodeUint(field.key); err != nil {
				return err
			}
			if err := field.put(); err != nil {
				return err
			}
		}
	}
	return nil
}

func unpackError(body []byte) (*value.Error, error) {
	r := bytes.NewReader(body)
	dec := vmsgpack.NewDecoder(r)

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, malformed("error", err)
	}
	var stack []*value.Error
	for i := 0; i < n; i++ {
		key, err := dec.DecodeUint64()
		if err != nil {
			return nil, malformed("error", err)
		}
		if key != errorStackKey {
			if err := dec.Skip(); err != nil {
				return nil, malformed("error", err)
			}
			continue
		}
		stack, err = unpackErrorStack(dec)
		if err != nil {
			return nil, err
		}
	}
	if len(stack) == 0 {
		return nil, merr.WrapErrMalformedExtension("error", "empty error stack")
	}
	if r.Len() != 0 {
		return nil, merr.WrapErrMalformedExtension("error", fmt.Sprintf("%d bytes left after stack", r.Len()))
	}
	for i := 0; i+1 < len(stack); i++ {
		stack[i].Prev = stack[i+1]
	}
	return stack[0], nil
}

func unpackErrorStack(dec *vmsgpack.Decoder) ([]*value.Error, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, malformed("error", err)
	}
	stack := make([]*value.Error, 0, n)
	for i := 0; i < n; i++ {
		fields, err := dec.DecodeMapLen()
		if err != nil {
			return nil, malformed("error", err)
		}
		item := &value.Error{}
		for j := 0; j < fields; j++ {
			key, err := dec.DecodeUint64()
			if err != nil {
				return nil, malformed("error", err)
			}
			switch key {
			case errorTypeKey:
				item.Class, err = dec.DecodeString()
			case errorFileKey:
				item.File, err = dec.DecodeString()
			case errorLineKey:
				item.Line, err = dec.DecodeUint32()
			case errorMessageKey:
				item.Message, err = dec.DecodeString()
			case errorErrnoKey:
				item.Errno, err = dec.DecodeUint32()
			case errorCodeKey:
				item.Code, err = dec.DecodeUint32()
			default:
				err = dec.Skip()
			}
			if err != nil {
				return nil, malformed("error", err)
			}
		}
		stack = append(stack, item)
	}
	return stack, nil
}

func isUintCode(c byte) bool {
	return c <= msgpcode.PosFixedNumHigh || c == msgpcode.Uint8 || c == msgpcode.Uint16 ||
		c == msgpcode.Uint32 || c == msgpcode.Uint64
}

func isIntCode(c byte) bool {
	return c >= msgpcode.NegFixedNumLow || c == msgpcode.Int8 || c == msgpcode.Int16 ||
		c == msgpcode.Int32 || c == msgpcode.Int64
}

// decodeSigned 读取有符号整数字段。DecodeInt64 会把 uint64 编码的大数回绕成负数，
// 也会截断浮点数，因此先检查类型码。
func decodeSigned(dec *vmsgpack.Decoder, ext, field string) (int64, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return 0, malformed(ext, err)
	}
	switch {
	case code == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return 0, malformed(ext, err)
		}
		if u > math.MaxInt64 {
			return 0, merr.WrapErrMalformedExtension(ext, fmt.Sprintf("%s %d overflows int64", field, u))
		}
		return int64(u), nil
	case isUintCode(code) || isIntCode(code):
		i, err := dec.DecodeInt64()
		if err != nil {
			return 0, malformed(ext, err)
		}
		return i, nil
	default:
		return 0, merr.WrapErrMalformedExtension(ext, fmt.Sprintf("%s must be an integer, got code %#x", field, code))
	}
}

// decodeUnsigned 读取无符号整数字段，负数与浮点数视为损坏。
func decodeUnsigned(dec *vmsgpack.Decoder, ext, field string) (uint64, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return 0, malformed(ext, err)
	}
	if !isUintCode(code) {
		return 0, merr.WrapErrMalformedExtension(ext, fmt.Sprintf("%s must be an unsigned integer, got code %#x", field, code))
	}
	u, err := dec.DecodeUint64()
	if err != nil {
		return 0, malformed(ext, err)
	}
	return u, nil
}

func malformed(ext string, err error) error {
	return merr.WrapErrMalformedExtension(ext, err.Error())
}
