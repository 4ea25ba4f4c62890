package value

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/vserial-go/pkg/util/merr"
)

func TestTableOrderAndDelete(t *testing.T) {
	tbl := NewMap(String("b"), Number(2), String("a"), Number(1), String("c"), Number(3))
	tbl.Set(String("a"), Number(10))
	tbl.Delete(String("b"))
	tbl.Set(String("d"), nil)

	var keys []Value
	tbl.Range(func(k, v Value) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []Value{String("a"), String("c")}, keys)
	assert.Equal(t, Number(10), tbl.Get(String("a")))
	assert.Nil(t, tbl.Get(String("b")))
	assert.Equal(t, 2, tbl.Len())

	tbl.Set(String("c"), Nil{})
	assert.Equal(t, 1, tbl.Len())
}

func TestTableArrayLen(t *testing.T) {
	tbl := NewArray(String("x"), String("y"))
	tbl.Append(String("z"))
	assert.Equal(t, 3, tbl.ArrayLen())

	tbl.Set(Number(5), Bool(true))
	assert.Equal(t, 3, tbl.ArrayLen())
	assert.Equal(t, 4, tbl.Len())

	tbl.Set(Number(math.NaN()), Bool(true))
	tbl.Set(nil, Bool(true))
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, 0, NewTable().ArrayLen())
	assert.Equal(t, 5, tbl.MaxN())
	assert.Equal(t, 0, NewMap(String("k"), Number(1)).MaxN())
}

func TestIdentityKeys(t *testing.T) {
	a, b := NewTable(), NewTable()
	tbl := NewTable()
	tbl.Set(a, Number(1))
	tbl.Set(b, Number(2))
	assert.Equal(t, Number(1), tbl.Get(a))
	assert.Equal(t, Number(2), tbl.Get(b))
}

func TestNumberInteger(t *testing.T) {
	i, ok := Number(42).Integer()
	assert.True(t, ok)
	assert.EqualValues(t, 42, i)
	_, ok = Number(1.5).Integer()
	assert.False(t, ok)
	_, ok = Number(math.Inf(1)).Integer()
	assert.False(t, ok)
	_, ok = Number(math.Ldexp(1, 63)).Integer()
	assert.False(t, ok)
}

func TestDatetimeString(t *testing.T) {
	cases := []struct {
		dt   Datetime
		want string
	}{
		{Datetime{Secs: 0}, "1970-01-01T00:00:00Z"},
		{Datetime{Secs: 1700000000, Nsec: 123000000}, "2023-11-14T22:13:20.123Z"},
		{Datetime{Secs: 1700000000, Nsec: 123456000}, "2023-11-14T22:13:20.123456Z"},
		{Datetime{Secs: 1700000000, Nsec: 1}, "2023-11-14T22:13:20.000000001Z"},
		{Datetime{Secs: 0, TzOffset: 180}, "1970-01-01T03:00:00+0300"},
		{Datetime{Secs: 0, TzOffset: -90}, "1969-12-31T22:30:00-0130"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.dt.String())
	}
}

func TestDatetimeParseAndTime(t *testing.T) {
	dt := Datetime{Secs: 1700000000, Nsec: 5000, TzOffset: 180}
	parsed, err := ParseDatetime(dt.String())
	require.NoError(t, err)
	assert.Equal(t, dt, parsed)

	tm := dt.Time()
	assert.Equal(t, int64(1700000000), tm.Unix())
	assert.Equal(t, dt, FromTime(tm))

	_, err = ParseDatetime("yesterday")
	assert.ErrorIs(t, err, merr.ErrMalformedExtension)
	assert.NoError(t, Now().Validate())
	assert.WithinDuration(t, time.Now(), Now().Time(), time.Minute)
}

func TestDatetimeValidate(t *testing.T) {
	assert.NoError(t, Datetime{Secs: MaxEpochSecs, Nsec: MaxNsec, TzOffset: MaxTzOffset}.Validate())
	assert.NoError(t, Datetime{Secs: MinEpochSecs, TzOffset: MinTzOffset}.Validate())
	for _, bad := range []Datetime{
		{Secs: MaxEpochSecs + 1},
		{Secs: MinEpochSecs - 1},
		{Nsec: 1000000000},
		{Nsec: -1},
		{TzOffset: 721},
		{TzOffset: -721},
	} {
		assert.ErrorIs(t, bad.Validate(), merr.ErrMalformedExtension, "%+v", bad)
	}
}

func TestErrorStack(t *testing.T) {
	cause := &Error{Class: "SystemError", Message: "disk"}
	top := &Error{Class: "ClientError", Message: "write failed", Code: 9, Prev: cause}
	assert.Equal(t, []*Error{top, cause}, top.Stack())
	assert.ErrorIs(t, top, cause)
	assert.Equal(t, "write failed", top.Error())
}

func TestTostring(t *testing.T) {
	d, err := ParseDecimal("-12.340")
	require.NoError(t, err)
	id := UUID(uuid.MustParse("f81d4fae-7dec-11d0-a765-00a0c91e6bf6"))

	assert.Equal(t, "nil", Tostring(nil))
	assert.Equal(t, "true", Tostring(Bool(true)))
	assert.Equal(t, "0.1", Tostring(Number(0.1)))
	assert.Equal(t, "3.1415926535898", Tostring(Number(math.Pi)))
	assert.Equal(t, "nan", Tostring(Number(math.NaN())))
	assert.Equal(t, "-inf", Tostring(Double(math.Inf(-1))))
	assert.Equal(t, "-5LL", Tostring(Int64(-5)))
	assert.Equal(t, "5ULL", Tostring(Uint64(5)))
	assert.Equal(t, "-12.34", Tostring(d))
	assert.Equal(t, "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", Tostring(id))
	assert.Equal(t, "1970-01-01T00:00:00Z", Tostring(Datetime{}))
	assert.Equal(t, "custom", Tostring(&Userdata{ToString: func() string { return "custom" }}))
	assert.Contains(t, Tostring(&Userdata{Name: "fiber"}), "fiber: 0x")
	assert.Contains(t, Tostring(NewTable()), "table: 0x")
	assert.Equal(t, "cdata<void *>: NULL", Tostring(Null{}))
	assert.Equal(t, decimal.RequireFromString("-12.34").String(), d.String())
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "nil", TypeOf(nil).String())
	assert.Equal(t, "table", TypeOf(NewTable()).String())
	assert.Equal(t, "unknown", Type(99).String())
	assert.True(t, IsNil(Nil{}))
	assert.False(t, IsNil(Bool(false)))
}
