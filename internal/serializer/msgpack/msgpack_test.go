package msgpack

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type MsgpackSuite struct {
	suite.Suite
	cfg *serializer.Config
	s   *Serializer
}

func (s *MsgpackSuite) SetupTest() {
	s.cfg = serializer.NewConfig()
	s.s = New(Options{Config: s.cfg})
}

func (s *MsgpackSuite) marshal(v value.Value) []byte {
	data, err := s.s.Marshal(v)
	s.Require().NoError(err)
	return data
}

func (s *MsgpackSuite) unmarshal(data []byte) value.Value {
	v, err := s.s.Unmarshal(data)
	s.Require().NoError(err)
	return v
}

func (s *MsgpackSuite) TestName() {
	s.Equal("msgpack", s.s.Name())
}

func (s *MsgpackSuite) TestScalars() {
	cases := []struct {
		v    value.Value
		want []byte
	}{
		{value.Nil{}, []byte{0xc0}},
		{value.Bool(true), []byte{0xc3}},
		{value.Number(1), []byte{0x01}},
		{value.Number(-1), []byte{0xff}},
		{value.Number(300), []byte{0xcd, 0x01, 0x2c}},
		{value.Int64(-200), []byte{0xd1, 0xff, 0x38}},
		{value.Uint64(math.MaxUint64), []byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{value.Float32(0.5), []byte{0xca, 0x3f, 0x00, 0x00, 0x00}},
		{value.Number(1.5), []byte{0xcb, 0x3f, 0xf8, 0, 0, 0, 0, 0, 0}},
		{value.String("a"), []byte{0xa1, 'a'}},
	}
	for _, c := range cases {
		s.Equal(c.want, s.marshal(c.v), "%v", c.v)
	}
}

func (s *MsgpackSuite) TestContainers() {
	s.Equal([]byte{0x93, 0x01, 0x02, 0x03}, s.marshal(value.NewArray(value.Number(1), value.Number(2), value.Number(3))))
	s.Equal([]byte{0x81, 0xa1, 'a', 0x01}, s.marshal(value.NewMap(value.String("a"), value.Number(1))))
	s.Equal([]byte{0x90}, s.marshal(value.NewTable()))
}

func (s *MsgpackSuite) TestHoleRoundTrip() {
	t := value.NewMap(value.Number(1), value.Number(1), value.Number(3), value.Number(3))
	data := s.marshal(t)
	s.Equal([]byte{0x93, 0x01, 0xc0, 0x03}, data)

	decoded := s.unmarshal(data).(*value.Table)
	s.Equal(2, decoded.Len())
	s.Nil(decoded.Get(value.Number(2)))
	s.Equal(data, s.marshal(decoded))
}

func (s *MsgpackSuite) TestInvalidNumberAsNil() {
	s.Require().NoError(s.cfg.Update(map[string]any{
		"encode_invalid_numbers": false,
		"encode_invalid_as_nil":  true,
	}))
	data := s.marshal(value.NewArray(value.Number(math.NaN()), value.Number(1)))
	s.Equal([]byte{0x92, 0xc0, 0x01}, data)

	decoded := s.unmarshal(data).(*value.Table)
	s.Nil(decoded.Get(value.Number(1)))
	s.Equal(value.Number(1), decoded.Get(value.Number(2)))
	s.EqualValues(2, decoded.MaxN())

	s.Equal(value.Nil{}, s.unmarshal(s.marshal(value.Number(math.Inf(1)))))
}

func (s *MsgpackSuite) TestDecodeIntegers() {
	s.Equal(value.Number(300), s.unmarshal([]byte{0xcd, 0x01, 0x2c}))
	s.Equal(value.Number(-200), s.unmarshal([]byte{0xd1, 0xff, 0x38}))
	s.Equal(value.Uint64(math.MaxUint64), s.unmarshal([]byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}))
	s.Equal(value.Int64(math.MinInt64), s.unmarshal([]byte{0xd3, 0x80, 0, 0, 0, 0, 0, 0, 0}))
	s.Equal(value.Number(0.5), s.unmarshal([]byte{0xca, 0x3f, 0x00, 0x00, 0x00}))
	s.Equal(value.String("ab"), s.unmarshal([]byte{0xc4, 0x02, 'a', 'b'}))
}

func (s *MsgpackSuite) TestSelfCycle() {
	t := value.NewArray(value.String("a"))
	t.Set(value.Number(2), t)

	data := s.marshal(t)
	s.Equal([]byte{0xd4, 0x10, 0x00, 0x92, 0xa1, 'a', 0xd4, 0x11, 0x00}, data)

	decoded := s.unmarshal(data).(*value.Table)
	s.Equal(value.String("a"), decoded.Get(value.Number(1)))
	s.Same(decoded, decoded.Get(value.Number(2)))
	s.Equal("seq", decoded.Metatable().Serialize)
	s.Equal(data, s.marshal(decoded))
}

func (s *MsgpackSuite) TestSharedChild() {
	shared := value.NewMap(value.String("k"), value.Bool(false))
	root := value.NewArray(shared, shared)

	data := s.marshal(root)
	s.Equal([]byte{0x92, 0xd4, 0x10, 0x00, 0x81, 0xa1, 'k', 0xc2, 0xd4, 0x11, 0x00}, data)

	decoded := s.unmarshal(data).(*value.Table)
	first := decoded.Get(value.Number(1)).(*value.Table)
	s.Same(first, decoded.Get(value.Number(2)))
	s.Equal("map", first.Metatable().Serialize)
}

func (s *MsgpackSuite) TestDecodeOptions() {
	s.Require().NoError(s.cfg.Update(map[string]any{"decode_save_metatables": false}))
	decoded := s.unmarshal([]byte{0x91, 0x01}).(*value.Table)
	s.Nil(decoded.Metatable())

	nan := []byte{0xcb, 0x7f, 0xf8, 0, 0, 0, 0, 0, 0}
	v := s.unmarshal(nan)
	s.True(math.IsNaN(float64(v.(value.Number))))

	s.Require().NoError(s.cfg.Update(map[string]any{"decode_invalid_numbers": false}))
	_, err := s.s.Unmarshal(nan)
	s.ErrorIs(err, merr.ErrInvalidNumber)
}

func (s *MsgpackSuite) TestDecodeDepth() {
	s.Require().NoError(s.cfg.Update(map[string]any{"decode_max_depth": 2}))
	s.unmarshal([]byte{0x91, 0x91, 0x01})
	_, err := s.s.Unmarshal([]byte{0x91, 0x91, 0x91, 0x01})
	s.ErrorIs(err, merr.ErrDepthExceeded)
}

func (s *MsgpackSuite) TestDecodeErrors() {
	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, merr.ErrMalformedInput},
		{"truncated", []byte{0x92, 0x01}, merr.ErrMalformedInput},
		{"trailing", []byte{0x01, 0xc0}, merr.ErrTrailingData},
		{"reserved code", []byte{0xc1}, merr.ErrMalformedInput},
		{"unknown alias", []byte{0xd4, 0x11, 0x05}, merr.ErrMalformedExtension},
		{"anchored scalar", []byte{0xd4, 0x10, 0x00, 0x01}, merr.ErrMalformedExtension},
		{"unknown ext", []byte{0xd4, 0x09, 0x00}, merr.ErrMalformedExtension},
		{"bad uuid", []byte{0xd4, 0x02, 0x00}, merr.ErrMalformedExtension},
	}
	for _, c := range cases {
		_, err := s.s.Unmarshal(c.data)
		s.ErrorIs(err, c.err, c.name)
		s.True(merr.IsDecodeError(err), c.name)
	}
}

func (s *MsgpackSuite) TestUUID() {
	u := value.UUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	data := s.marshal(u)
	s.Equal([]byte{0xd8, 0x02}, data[:2])
	s.Len(data, 18)
	s.Equal(u, s.unmarshal(data))
}

func (s *MsgpackSuite) TestDecimal() {
	cases := []struct {
		text string
		want []byte
	}{
		{"1.25", []byte{0xc7, 0x03, 0x01, 0x02, 0x12, 0x5c}},
		{"-0.5", []byte{0xd5, 0x01, 0x01, 0x5d}},
		{"0", []byte{0xd5, 0x01, 0x00, 0x0c}},
		{"100", []byte{0xc7, 0x03, 0x01, 0x00, 0x10, 0x0c}},
	}
	for _, c := range cases {
		d, err := value.ParseDecimal(c.text)
		s.Require().NoError(err)
		data := s.marshal(d)
		s.Equal(c.want, data, c.text)
		decoded := s.unmarshal(data).(value.Decimal)
		s.True(d.Equal(decoded.Decimal), c.text)
	}

	tooLong := value.NewDecimal(decimal.RequireFromString("1234567890123456789012345678901234567890"))
	_, err := s.s.Marshal(tooLong)
	s.ErrorIs(err, merr.ErrMalformedExtension)

	_, err = s.s.Unmarshal([]byte{0xd5, 0x01, 0x00, 0x1a})
	s.NoError(err)
	_, err = s.s.Unmarshal([]byte{0xd5, 0x01, 0x00, 0xa1})
	s.ErrorIs(err, merr.ErrMalformedExtension)
	_, err = s.s.Unmarshal([]byte{0xd5, 0x01, 0x00, 0x11})
	s.ErrorIs(err, merr.ErrMalformedExtension)
}

func (s *MsgpackSuite) TestError() {
	cause := &value.Error{Class: "SystemError", Message: "disk", Errno: 5}
	e := &value.Error{Class: "ClientError", Message: "failed", File: "box.c", Line: 12, Code: 3, Prev: cause}

	s.Equal([]byte{0xa6, 'f', 'a', 'i', 'l', 'e', 'd'}, s.marshal(e))

	marshaling := New(Options{Config: s.cfg, Session: serializer.SessionOptions{ErrorMarshaling: true}})
	data, err := marshaling.Marshal(e)
	s.Require().NoError(err)
	s.Equal(byte(serializer.ExtError), data[2])

	decoded, err := marshaling.Unmarshal(data)
	s.Require().NoError(err)
	got := decoded.(*value.Error)
	s.Equal(e.Class, got.Class)
	s.Equal(e.Message, got.Message)
	s.Equal(e.File, got.File)
	s.Equal(e.Line, got.Line)
	s.Equal(e.Code, got.Code)
	s.Require().NotNil(got.Prev)
	s.Equal("disk", got.Prev.Message)
	s.EqualValues(5, got.Prev.Errno)
	s.Nil(got.Prev.Prev)
}

func (s *MsgpackSuite) TestMarshalTo() {
	var buf bytes.Buffer
	buf.WriteByte(0xc0)
	s.Require().NoError(s.s.MarshalTo(&buf, value.Number(7)))
	s.Equal([]byte{0xc0, 0x07}, buf.Bytes())

	err := s.s.MarshalTo(&buf, &value.Function{})
	s.ErrorIs(err, merr.ErrUnsupportedType)
	s.Equal(2, buf.Len())
}

func TestMsgpack(t *testing.T) {
	suite.Run(t, new(MsgpackSuite))
}
