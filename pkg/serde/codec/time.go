package codec

import (
	"time"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// DateTimeHandling 决定本地时间的写出方式。
type DateTimeHandling int

const (
	// DateTimeAsIs 按原样保留时区种类。
	DateTimeAsIs DateTimeHandling = iota
	// DateTimeNormalizeUTC 写出前将非 UTC 时间换算为 UTC。
	DateTimeNormalizeUTC
)

func (h DateTimeHandling) String() string {
	if h == DateTimeNormalizeUTC {
		return "normalize_utc"
	}
	return "as_is"
}

// Settings 为原始类型编解码所需的调用级设置。
type Settings struct {
	DateTime DateTimeHandling
}

const (
	ticksPerSecond = 10_000_000
	nanosPerTick   = 100
	// unixEpochTicks 为 0001-01-01 到 1970-01-01 的 tick 数。
	unixEpochTicks int64 = 621_355_968_000_000_000
)

// TimeToTicks 返回 t 所表示瞬时以 100ns 为单位、自公元 1 年起算的 tick 数。
func TimeToTicks(t time.Time) int64 {
	return t.Unix()*ticksPerSecond + int64(t.Nanosecond()/nanosPerTick) + unixEpochTicks
}

// TicksToTime 为 TimeToTicks 的逆运算，返回 UTC 时间。
func TicksToTime(ticks int64) time.Time {
	d := ticks - unixEpochTicks
	sec := d / ticksPerSecond
	rem := d % ticksPerSecond
	if rem < 0 {
		sec--
		rem += ticksPerSecond
	}
	return time.Unix(sec, rem*nanosPerTick).UTC()
}

// EncodeTime 写出不带标签的时间负载：种类字节、可选偏移与 zigzag tick。
func EncodeTime(w binio.Writer, t time.Time, h DateTimeHandling) {
	loc := t.Location()
	switch {
	case loc == time.UTC:
		w.PutByte(byte(wire.TimeUTC))
	case loc == time.Local && h == DateTimeNormalizeUTC:
		w.PutByte(byte(wire.TimeLocalNormalized))
	case loc == time.Local:
		_, offset := t.Zone()
		w.PutByte(byte(wire.TimeLocal))
		w.PutVarint(TimeToTicks(t) + int64(offset)*ticksPerSecond)
		return
	case h == DateTimeNormalizeUTC:
		w.PutByte(byte(wire.TimeUTC))
	default:
		_, offset := t.Zone()
		w.PutByte(byte(wire.TimeOffset))
		w.PutVarint(int64(offset))
	}
	w.PutVarint(TimeToTicks(t))
}

// DecodeTime 读取 EncodeTime 写出的负载。
func DecodeTime(r *binio.Reader) (time.Time, error) {
	pos := r.Pos()
	kind, err := r.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	var offset int64
	if wire.TimeKind(kind) == wire.TimeOffset {
		if offset, err = r.ReadVarint(); err != nil {
			return time.Time{}, err
		}
	}
	ticks, err := r.ReadVarint()
	if err != nil {
		return time.Time{}, err
	}
	utc := TicksToTime(ticks)
	switch wire.TimeKind(kind) {
	case wire.TimeUTC:
		return utc, nil
	case wire.TimeLocal:
		// tick 表示本地挂钟时间
		return time.Date(utc.Year(), utc.Month(), utc.Day(), utc.Hour(), utc.Minute(),
			utc.Second(), utc.Nanosecond(), time.Local), nil
	case wire.TimeLocalNormalized:
		return utc.Local(), nil
	case wire.TimeOffset:
		return utc.In(time.FixedZone("", int(offset))), nil
	}
	return time.Time{}, merr.WrapErrSerdeInvalidFormat(pos, "unknown time kind %d", kind)
}
