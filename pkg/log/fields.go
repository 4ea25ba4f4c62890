package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameComponent = "component"
	FieldNameFormat    = "format"
	FieldNameKind      = "kind"
	FieldNameOptions   = "options"
)

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldFormat 返回一个包含序列化格式名（msgpack、yaml 等）的 zap 字段。
func FieldFormat(format string) zap.Field {
	return zap.String(FieldNameFormat, format)
}

// FieldKind 返回错误种类字段，取值与 merr.Kind 一致。
func FieldKind(kind string) zap.Field {
	return zap.String(FieldNameKind, kind)
}

// FieldOptions 返回一次配置更新涉及的选项名。
func FieldOptions(names []string) zap.Field {
	return zap.Strings(FieldNameOptions, names)
}
