package value

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decimal 为定点十进制数。
type Decimal struct {
	decimal.Decimal
}

func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// ParseDecimal 解析十进制字符串。
func ParseDecimal(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func (Decimal) Type() Type    { return TypeDecimal }
func (Decimal) ExtType() int8 { return ExtDecimal }

// UUID 为 RFC 4122 字节序的 UUID。
type UUID uuid.UUID

func (UUID) Type() Type    { return TypeUUID }
func (UUID) ExtType() int8 { return ExtUUID }

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Error 为宿主错误对象，Class 为错误类名（如 ClientError），Prev 指向其原因。
type Error struct {
	Class   string
	Message string
	File    string
	Line    uint32
	Errno   uint32
	Code    uint32
	Prev    *Error
}

func (e *Error) Type() Type    { return TypeError }
func (e *Error) ExtType() int8 { return ExtError }

func (e *Error) Error() string {
	return e.Message
}

// Unwrap 返回原因错误，便于 errors.Is/As 遍历。
func (e *Error) Unwrap() error {
	if e.Prev == nil {
		return nil
	}
	return e.Prev
}

// Stack 返回从自身到最初原因的错误链。
func (e *Error) Stack() []*Error {
	var stack []*Error
	for cur := e; cur != nil; cur = cur.Prev {
		stack = append(stack, cur)
	}
	return stack
}

// Userdata 为宿主不透明对象。
type Userdata struct {
	Name     string
	Payload  any
	Meta     *Meta
	ToString func() string
}

var _ Serializable = (*Userdata)(nil)

func (u *Userdata) Type() Type       { return TypeUserdata }
func (u *Userdata) Metatable() *Meta { return u.Meta }
func (u *Userdata) ExtType() int8    { return ExtUnknown }

// Function 为宿主函数，永远无法直接编码。
type Function struct {
	Name string
}

func (f *Function) Type() Type { return TypeFunction }

// Null 为空指针对象，编码为 nil。
type Null struct{}

func (Null) Type() Type { return TypeNull }
