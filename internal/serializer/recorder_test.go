package serializer

import (
	"fmt"
	"strings"
)

// recorder 记录发射事件，便于断言编码结构。
type recorder struct {
	refs   bool
	events []string
}

func (r *recorder) References() bool { return r.refs }

func (r *recorder) Scalar(f *Field) error {
	switch f.Type {
	case FieldNil:
		r.events = append(r.events, "nil")
	case FieldBool:
		r.events = append(r.events, fmt.Sprintf("bool:%v", f.Bool))
	case FieldInt:
		r.events = append(r.events, fmt.Sprintf("int:%d", f.Int))
	case FieldUint:
		r.events = append(r.events, fmt.Sprintf("uint:%d", f.Uint))
	case FieldDouble:
		r.events = append(r.events, fmt.Sprintf("double:%v", f.Double))
	case FieldFloat:
		r.events = append(r.events, fmt.Sprintf("float:%v", f.Float))
	case FieldStr:
		r.events = append(r.events, "str:"+f.Str)
	case FieldExt:
		r.events = append(r.events, fmt.Sprintf("ext:%d", f.ExtType))
	}
	return nil
}

func (r *recorder) BeginArray(f *Field, anchor string) error {
	r.events = append(r.events, fmt.Sprintf("array(%d)%s", f.Size, anchorSuffix(anchor)))
	return nil
}

func (r *recorder) BeginMap(f *Field, anchor string) error {
	r.events = append(r.events, fmt.Sprintf("map(%d)%s", f.Size, anchorSuffix(anchor)))
	return nil
}

func (r *recorder) End() error {
	r.events = append(r.events, "end")
	return nil
}

func (r *recorder) Alias(anchor string) error {
	r.events = append(r.events, "*"+anchor)
	return nil
}

func (r *recorder) String() string {
	return strings.Join(r.events, " ")
}

func anchorSuffix(anchor string) string {
	if anchor == "" {
		return ""
	}
	return "&" + anchor
}
