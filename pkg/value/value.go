// Package value 定义序列化器可处理的宿主值模型。
//
// 容器（*Table）与不透明对象（*Userdata）以指针身份区分，
// 其余变体均为不可变的值类型。
package value

import (
	"math"
)

// Type 为值的运行时种类。
type Type int

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeDouble
	TypeString
	TypeTable
	TypeDecimal
	TypeUUID
	TypeError
	TypeDatetime
	TypeUserdata
	TypeFunction
	TypeNull
)

var typeNames = map[Type]string{
	TypeNil:      "nil",
	TypeBool:     "boolean",
	TypeNumber:   "number",
	TypeInt64:    "int64",
	TypeUint64:   "uint64",
	TypeFloat32:  "float",
	TypeDouble:   "double",
	TypeString:   "string",
	TypeTable:    "table",
	TypeDecimal:  "decimal",
	TypeUUID:     "uuid",
	TypeError:    "error",
	TypeDatetime: "datetime",
	TypeUserdata: "userdata",
	TypeFunction: "function",
	TypeNull:     "cdata",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Value 是宿主值的统一接口。Go 的 nil 与 Nil{} 等价。
type Value interface {
	Type() Type
}

// Serializable 由携带元表的值实现，用于查询自定义序列化能力。
type Serializable interface {
	Value
	Metatable() *Meta
}

// Object 为扩展对象，ExtType 返回其原生扩展种类。
type Object interface {
	Value
	ExtType() int8
}

// 扩展种类编号，与线上格式保持一致。
const (
	ExtUnknown  int8 = 0
	ExtDecimal  int8 = 1
	ExtUUID     int8 = 2
	ExtError    int8 = 3
	ExtDatetime int8 = 4
)

type (
	Nil     struct{}
	Bool    bool
	Number  float64
	Int64   int64
	Uint64  uint64
	Float32 float32
	Double  float64
	String  string
)

func (Nil) Type() Type     { return TypeNil }
func (Bool) Type() Type    { return TypeBool }
func (Number) Type() Type  { return TypeNumber }
func (Int64) Type() Type   { return TypeInt64 }
func (Uint64) Type() Type  { return TypeUint64 }
func (Float32) Type() Type { return TypeFloat32 }
func (Double) Type() Type  { return TypeDouble }
func (String) Type() Type  { return TypeString }

// IsNil 判断 v 是否为空值。
func IsNil(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Nil)
	return ok
}

// TypeOf 返回 v 的种类，nil 视为 TypeNil。
func TypeOf(v Value) Type {
	if v == nil {
		return TypeNil
	}
	return v.Type()
}

// Integer 在 n 为整数时返回其 int64 值。
func (n Number) Integer() (int64, bool) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(f), true
}

// Meta 为值的元表，目前只承载自定义序列化能力。
//
// Serialize 为 string 时表示类型提示（array/seq/sequence、map/mapping），
// 为 SerializeFunc 时表示替换函数，其余取值在编码时报错。
type Meta struct {
	Serialize any
}

// SerializeFunc 接收原值并返回其替换值。
type SerializeFunc func(Value) (Value, error)

// WithHint 返回携带提示字面量的元表。
func WithHint(hint string) *Meta {
	return &Meta{Serialize: hint}
}

// WithSerializer 返回携带替换函数的元表。
func WithSerializer(fn SerializeFunc) *Meta {
	return &Meta{Serialize: fn}
}
