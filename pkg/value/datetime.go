package value

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/vserial-go/pkg/util/merr"
)

const (
	// MinEpochSecs / MaxEpochSecs 为可表示的秒数范围（约 ±5879610 年）。
	MinEpochSecs int64 = -185604722870400
	MaxEpochSecs int64 = 185480451417600

	MaxNsec      int32 = 999999999
	MinTzOffset  int16 = -12 * 60
	MaxTzOffset  int16 = 12 * 60
	secsPerMinute      = 60
)

// Datetime 为带时区偏移的时间点，TzOffset 单位为分钟。
type Datetime struct {
	Secs     int64
	Nsec     int32
	TzOffset int16
}

func (Datetime) Type() Type    { return TypeDatetime }
func (Datetime) ExtType() int8 { return ExtDatetime }

// Validate 检查各字段是否处于可表示范围。
func (d Datetime) Validate() error {
	if d.Secs < MinEpochSecs || d.Secs > MaxEpochSecs {
		return merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("secs %d out of range [%d, %d]", d.Secs, MinEpochSecs, MaxEpochSecs))
	}
	if d.Nsec < 0 || d.Nsec > MaxNsec {
		return merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("nsec %d out of range [0, %d]", d.Nsec, MaxNsec))
	}
	if d.TzOffset < MinTzOffset || d.TzOffset > MaxTzOffset {
		return merr.WrapErrMalformedExtension("datetime",
			fmt.Sprintf("tzoffset %d out of range [%d, %d]", d.TzOffset, MinTzOffset, MaxTzOffset))
	}
	return nil
}

// Time 返回对应的 time.Time，位置为固定偏移时区。
func (d Datetime) Time() time.Time {
	loc := time.UTC
	if d.TzOffset != 0 {
		loc = time.FixedZone("", int(d.TzOffset)*secsPerMinute)
	}
	return time.Unix(d.Secs, int64(d.Nsec)).In(loc)
}

// FromTime 由 time.Time 构造 Datetime，偏移取自 t 所在时区。
func FromTime(t time.Time) Datetime {
	_, offset := t.Zone()
	return Datetime{
		Secs:     t.Unix(),
		Nsec:     int32(t.Nanosecond()),
		TzOffset: int16(offset / secsPerMinute),
	}
}

// Now 返回当前本地时间。
func Now() Datetime {
	return FromTime(time.Now())
}

// String 按 ISO-8601 输出，小数部分取 3/6/9 位中最短的无损形式。
func (d Datetime) String() string {
	local := time.Unix(d.Secs+int64(d.TzOffset)*secsPerMinute, 0).UTC()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d-%02d-%02dT%02d:%02d:%02d",
		local.Year(), int(local.Month()), local.Day(),
		local.Hour(), local.Minute(), local.Second())

	switch nsec := d.Nsec; {
	case nsec == 0:
	case nsec%1000000 == 0:
		fmt.Fprintf(&sb, ".%03d", nsec/1000000)
	case nsec%1000 == 0:
		fmt.Fprintf(&sb, ".%06d", nsec/1000)
	default:
		fmt.Fprintf(&sb, ".%09d", nsec)
	}

	if d.TzOffset == 0 {
		sb.WriteByte('Z')
		return sb.String()
	}
	sign := byte('+')
	offset := int(d.TzOffset)
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	sb.WriteByte(sign)
	fmt.Fprintf(&sb, "%02d%02d", offset/60, offset%60)
	return sb.String()
}

// ParseDatetime 解析 String 的输出格式。
func ParseDatetime(s string) (Datetime, error) {
	t, err := time.Parse("2006-01-02T15:04:05.999999999Z0700", s)
	if err != nil {
		return Datetime{}, merr.WrapErrMalformedExtension("datetime", err.Error())
	}
	return FromTime(t), nil
}
