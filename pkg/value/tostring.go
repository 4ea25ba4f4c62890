package value

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultNumberPrecision 为数字转文本时默认的有效位数。
const DefaultNumberPrecision = 14

// FormatNumber 以 precision 位有效数字格式化浮点数，非有限值输出 nan/inf/-inf。
func FormatNumber(f float64, precision int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if precision <= 0 {
		precision = DefaultNumberPrecision
	}
	return strconv.FormatFloat(f, 'g', precision, 64)
}

// Tostring 返回值的宿主字符串形式。
func Tostring(v Value) string {
	switch x := v.(type) {
	case nil, Nil:
		return "nil"
	case Bool:
		return strconv.FormatBool(bool(x))
	case Number:
		return FormatNumber(float64(x), DefaultNumberPrecision)
	case Int64:
		return strconv.FormatInt(int64(x), 10) + "LL"
	case Uint64:
		return strconv.FormatUint(uint64(x), 10) + "ULL"
	case Float32:
		return FormatNumber(float64(x), DefaultNumberPrecision)
	case Double:
		return FormatNumber(float64(x), DefaultNumberPrecision)
	case String:
		return string(x)
	case *Table:
		return fmt.Sprintf("table: %p", x)
	case Decimal:
		return x.String()
	case UUID:
		return x.String()
	case *Error:
		return x.Message
	case Datetime:
		return x.String()
	case *Userdata:
		if x.ToString != nil {
			return x.ToString()
		}
		name := x.Name
		if name == "" {
			name = "userdata"
		}
		return fmt.Sprintf("%s: %p", name, x)
	case *Function:
		return fmt.Sprintf("function: %p", x)
	case Null:
		return "cdata<void *>: NULL"
	default:
		return fmt.Sprintf("%v", x)
	}
}
