package serializer

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type ClassifySuite struct {
	suite.Suite
	opts Options
}

func (s *ClassifySuite) SetupTest() {
	s.opts = DefaultOptions()
}

func (s *ClassifySuite) classify(v value.Value) *Field {
	f, err := Classify(v, s.opts, SessionOptions{})
	s.Require().NoError(err)
	return f
}

func (s *ClassifySuite) TestScalars() {
	s.Equal(FieldNil, s.classify(nil).Type)
	s.Equal(FieldNil, s.classify(value.Nil{}).Type)
	s.Equal(FieldNil, s.classify(value.Null{}).Type)

	f := s.classify(value.Bool(true))
	s.Equal(FieldBool, f.Type)
	s.True(f.Bool)

	f = s.classify(value.String("hello"))
	s.Equal(FieldStr, f.Type)
	s.Equal("hello", f.Str)
	s.EqualValues(5, f.Size)
}

func (s *ClassifySuite) TestNumbers() {
	f := s.classify(value.Number(3))
	s.Equal(FieldUint, f.Type)
	s.EqualValues(3, f.Uint)

	f = s.classify(value.Number(-3))
	s.Equal(FieldInt, f.Type)
	s.EqualValues(-3, f.Int)

	f = s.classify(value.Number(1.5))
	s.Equal(FieldDouble, f.Type)
	s.Equal(1.5, f.Double)

	f = s.classify(value.Number(math.Pow(2, 64)))
	s.Equal(FieldDouble, f.Type)

	f = s.classify(value.Number(math.Pow(2, 63)))
	s.Equal(FieldUint, f.Type)
	s.EqualValues(uint64(1)<<63, f.Uint)

	f = s.classify(value.Int64(-5))
	s.Equal(FieldInt, f.Type)
	s.EqualValues(-5, f.Int)

	f = s.classify(value.Int64(5))
	s.Equal(FieldUint, f.Type)

	f = s.classify(value.Uint64(math.MaxUint64))
	s.Equal(FieldUint, f.Type)
	s.EqualValues(uint64(math.MaxUint64), f.Uint)

	f = s.classify(value.Float32(0.5))
	s.Equal(FieldFloat, f.Type)
	s.EqualValues(0.5, f.Float)

	f = s.classify(value.Double(2))
	s.Equal(FieldDouble, f.Type)
}

func (s *ClassifySuite) TestInvalidNumbers() {
	nan := value.Number(math.NaN())

	f := s.classify(nan)
	s.Equal(FieldDouble, f.Type)
	s.True(math.IsNaN(f.Double))

	s.opts.EncodeInvalidNumbers = false
	_, err := Classify(nan, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrInvalidNumber)
	_, err = Classify(value.Double(math.Inf(1)), s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrInvalidNumber)

	s.opts.EncodeInvalidAsNil = true
	s.Equal(FieldNil, s.classify(nan).Type)
	s.Equal(FieldNil, s.classify(value.Float32(float32(math.Inf(-1)))).Type)
}

func (s *ClassifySuite) TestTableShapes() {
	cases := []struct {
		name  string
		table *value.Table
		typ   FieldType
		size  uint32
	}{
		{"empty", value.NewTable(), FieldArray, 0},
		{"sequence", value.NewArray(value.Number(1), value.Number(2), value.Number(3)), FieldArray, 3},
		{"string keys", value.NewMap(value.String("a"), value.Number(1)), FieldMap, 1},
		{"zero key", value.NewMap(value.Number(0), value.String("x")), FieldMap, 1},
		{"fraction key", value.NewMap(value.Number(1.5), value.String("x")), FieldMap, 1},
		{"negative key", value.NewMap(value.Number(-1), value.String("x")), FieldMap, 1},
		{"mixed", value.NewMap(value.Number(1), value.String("x"), value.String("k"), value.String("y")), FieldMap, 2},
		{"small hole", value.NewMap(value.Number(1), value.Number(1), value.Number(2), value.Number(2), value.Number(5), value.Number(5)), FieldArray, 5},
		{"leading hole", value.NewMap(value.Number(1), value.Number(1), value.Number(3), value.Number(3)), FieldArray, 3},
		{"within safe", value.NewMap(value.Number(10), value.Bool(true)), FieldArray, 10},
		{"beyond safe", value.NewMap(value.Number(11), value.Bool(true)), FieldMap, 1},
		{"sparse", value.NewMap(value.Number(1), value.Number(1), value.Number(2), value.Number(2), value.Number(100), value.Number(3)), FieldMap, 3},
		{"huge key", value.NewMap(value.Number(1), value.Number(1), value.Number(math.Pow(2, 33)), value.Number(2)), FieldMap, 2},
		{"at ratio", sparseTable(12), FieldArray, 12},
		{"beyond ratio", sparseTable(13), FieldMap, 6},
	}
	s.opts.EncodeSparseConvert = true
	for _, c := range cases {
		f := s.classify(c.table)
		s.Equal(c.typ, f.Type, c.name)
		s.Equal(c.size, f.Size, c.name)
		s.Same(c.table, f.Value, c.name)
	}
}

// sparseTable 返回键为 1..5 与 max 的六元素表，默认比例 2 下 max == 12 恰好在边界上。
func sparseTable(max int) *value.Table {
	t := value.NewTable()
	for i := 1; i <= 5; i++ {
		t.Set(value.Number(i), value.Number(i))
	}
	t.Set(value.Number(max), value.Number(max))
	return t
}

func (s *ClassifySuite) TestSparseRefused() {
	s.opts.EncodeSparseConvert = false
	t := value.NewMap(value.Number(1), value.Number(1), value.Number(100), value.Number(2))
	_, err := Classify(t, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrExcessivelySparseArray)
	s.Equal("ExcessivelySparseArray", merr.Kind(err))

	// 比例为 0 时关闭稀疏检测。
	s.opts.EncodeSparseRatio = 0
	f := s.classify(t)
	s.Equal(FieldArray, f.Type)
	s.EqualValues(100, f.Size)
}

func (s *ClassifySuite) TestHints() {
	cases := []struct {
		hint    string
		typ     FieldType
		size    uint32
		compact bool
	}{
		{"seq", FieldArray, 3, true},
		{"array", FieldArray, 3, false},
		{"sequence", FieldArray, 3, false},
		{"map", FieldMap, 2, true},
		{"mapping", FieldMap, 2, false},
	}
	for _, c := range cases {
		t := value.NewMap(value.Number(1), value.String("a"), value.Number(3), value.String("c"))
		t.SetMeta(value.WithHint(c.hint))
		f := s.classify(t)
		s.Equal(c.typ, f.Type, c.hint)
		s.Equal(c.size, f.Size, c.hint)
		s.Equal(c.compact, f.Compact, c.hint)
	}

	// 字符串键的表按数组提示编码时长度为 0。
	t := value.NewMap(value.String("k"), value.String("v"))
	t.SetMeta(value.WithHint("seq"))
	f := s.classify(t)
	s.Equal(FieldArray, f.Type)
	s.EqualValues(0, f.Size)
}

func (s *ClassifySuite) TestInvalidHint() {
	t := value.NewArray(value.Number(1))
	t.SetMeta(value.WithHint("list"))
	_, err := Classify(t, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrInvalidSerializeHint)
	s.Equal("InvalidCustomSerializeHint", merr.Kind(err))

	t.SetMeta(&value.Meta{Serialize: 42})
	_, err = Classify(t, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrInvalidSerializeHint)

	// 不加载元表时忽略提示。
	s.opts.EncodeLoadMetatables = false
	f := s.classify(t)
	s.Equal(FieldArray, f.Type)
}

func (s *ClassifySuite) TestHookReplacement() {
	t := value.NewArray(value.Number(1))
	t.SetMeta(value.WithSerializer(func(value.Value) (value.Value, error) {
		return value.String("replaced"), nil
	}))
	f := s.classify(t)
	s.Equal(FieldStr, f.Type)
	s.Equal("replaced", f.Str)

	replacement := value.NewArray(value.Number(1), value.Number(2))
	replacement.SetMeta(value.WithHint("map"))
	t.SetMeta(value.WithSerializer(func(value.Value) (value.Value, error) {
		return replacement, nil
	}))
	f = s.classify(t)
	s.Equal(FieldMap, f.Type)
	s.Same(replacement, f.Value)
	s.True(f.Compact)

	t.SetMeta(&value.Meta{Serialize: func(value.Value) (value.Value, error) { return nil, nil }})
	s.Equal(FieldNil, s.classify(t).Type)
}

func (s *ClassifySuite) TestHookResultNotReentered() {
	calls := 0
	inner := value.NewArray(value.Number(7))
	inner.SetMeta(value.WithSerializer(func(value.Value) (value.Value, error) {
		calls++
		return value.String("inner"), nil
	}))
	outer := value.NewTable()
	outer.SetMeta(value.WithSerializer(func(value.Value) (value.Value, error) {
		return inner, nil
	}))
	f := s.classify(outer)
	s.Equal(FieldArray, f.Type)
	s.Same(inner, f.Value)
	s.Equal(0, calls)
}

func (s *ClassifySuite) TestHookFailed() {
	cause := errors.New("boom")
	t := value.NewTable()
	t.SetMeta(value.WithSerializer(func(value.Value) (value.Value, error) {
		return nil, cause
	}))
	_, err := Classify(t, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrHookFailed)
	s.ErrorIs(err, cause)
}

func (s *ClassifySuite) TestUserdata() {
	ud := &value.Userdata{Name: "box", ToString: func() string { return "box<1>" }}
	_, err := Classify(ud, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrUnsupportedType)

	s.opts.EncodeInvalidAsNil = true
	s.Equal(FieldNil, s.classify(ud).Type)

	s.opts.EncodeUseTostring = true
	f := s.classify(ud)
	s.Equal(FieldStr, f.Type)
	s.Equal("box<1>", f.Str)

	ud.Meta = value.WithSerializer(func(v value.Value) (value.Value, error) {
		return value.Number(7), nil
	})
	f = s.classify(ud)
	s.Equal(FieldUint, f.Type)
	s.EqualValues(7, f.Uint)

	// 提示字面量对不透明对象无效。
	ud.Meta = value.WithHint("map")
	f = s.classify(ud)
	s.Equal(FieldStr, f.Type)
}

func (s *ClassifySuite) TestFunction() {
	_, err := Classify(&value.Function{Name: "print"}, s.opts, SessionOptions{})
	s.ErrorIs(err, merr.ErrUnsupportedType)
	s.True(merr.IsEncodeError(err))
}

func (s *ClassifySuite) TestExtensions() {
	f := s.classify(value.NewDecimal(decimal.RequireFromString("1.25")))
	s.Equal(FieldExt, f.Type)
	s.Equal(ExtDecimal, f.ExtType)

	f = s.classify(value.Datetime{Secs: 1})
	s.Equal(FieldExt, f.Type)
	s.Equal(ExtDatetime, f.ExtType)

	f = s.classify(value.UUID{})
	s.Equal(ExtUUID, f.ExtType)

	e := &value.Error{Class: "ClientError", Message: "oops"}
	f = s.classify(e)
	s.Equal(FieldStr, f.Type)
	s.Equal("oops", f.Str)

	f, err := Classify(e, s.opts, SessionOptions{ErrorMarshaling: true})
	s.Require().NoError(err)
	s.Equal(FieldExt, f.Type)
	s.Equal(ExtError, f.ExtType)
	s.Same(e, f.Value)
}

func TestClassify(t *testing.T) {
	suite.Run(t, new(ClassifySuite))
}
