package serializer

import (
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// FieldType 为分类结果的线上种类。
type FieldType int

const (
	FieldNil FieldType = iota
	FieldBool
	FieldInt
	FieldUint
	FieldDouble
	FieldFloat
	FieldStr
	FieldArray
	FieldMap
	FieldExt
)

var fieldTypeNames = [...]string{"nil", "bool", "int", "uint", "double", "float", "str", "array", "map", "ext"}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return "unknown"
}

// ExtType 为扩展种类，编号即 msgpack 扩展类型号。
type ExtType = int8

const (
	ExtUnknown  = value.ExtUnknown
	ExtDecimal  = value.ExtDecimal
	ExtUUID     = value.ExtUUID
	ExtError    = value.ExtError
	ExtDatetime = value.ExtDatetime
)

// Field 为单个值的分类结果，每次分类新建，由发射器立即消费。
type Field struct {
	Type    FieldType
	ExtType ExtType
	// Size 对 Array 为元素个数，对 Map 为键值对个数，对 Str 为字节数。
	Size uint32
	// Compact 仅影响文本格式的展示风格。
	Compact bool

	Bool   bool
	Int    int64
	Uint   uint64
	Double float64
	Float  float32
	Str    string

	// Value 对 Array/Map 为待遍历的表（可能是钩子替换后的值），对 Ext 为扩展对象。
	Value value.Value
}

func (f *Field) setNil() {
	*f = Field{Type: FieldNil}
}
