package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq/oid"
)

// Encode converts the given Go value into the binary parameter encoding for
// the given type OID. The returned bytes carry the four byte big-endian
// length prefix the Bind message expects before the value bytes.
//
// TIME, TIMETZ and TIMESTAMP values are truncated to millisecond
// granularity before being widened to wire microseconds; finer precision in
// the caller's value is silently dropped.
func Encode(id oid.Oid, value any) ([]byte, error) {
	kind := KindOf(id)

	switch kind {
	case Bool:
		v, ok := value.(bool)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		b := byte(0)
		if v {
			b = 1
		}
		return prefixed([]byte{b}), nil

	case Int2:
		v, ok := asInt64(value)
		if !ok || v < math.MinInt16 || v > math.MaxInt16 {
			return nil, newConversionError(value, kind)
		}

		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(int16(v)))
		return prefixed(out), nil

	case Int4:
		v, ok := asInt64(value)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return nil, newConversionError(value, kind)
		}
		return prefixed(be32(int32(v))), nil

	case Int8:
		v, ok := asInt64(value)
		if !ok {
			return nil, newConversionError(value, kind)
		}
		return prefixed(be64(v)), nil

	case Float4:
		v, ok := asFloat64(value)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(float32(v)))
		return prefixed(out), nil

	case Float8:
		v, ok := asFloat64(value)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(v))
		return prefixed(out), nil

	case Date:
		v, ok := value.(time.Time)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		year, month, day := v.Date()
		midnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		days := int32(midnight.Sub(epochDate) / (24 * time.Hour))
		return prefixed(be32(days)), nil

	case Time:
		v, ok := value.(time.Time)
		if !ok {
			return nil, newConversionError(value, kind)
		}
		return prefixed(be64(clockMicros(v))), nil

	case TimeTZ:
		v, ok := value.(time.Time)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		// The wire carries the offset as the negative of seconds east of UTC.
		_, offset := v.Zone()
		out := make([]byte, 12)
		binary.BigEndian.PutUint64(out[0:8], uint64(clockMicros(v)))
		binary.BigEndian.PutUint32(out[8:12], uint32(int32(-offset)))
		return prefixed(out), nil

	case Timestamp:
		v, ok := value.(time.Time)
		if !ok {
			return nil, newConversionError(value, kind)
		}

		micros := (v.UnixMilli() - epochMillis) * 1000
		return prefixed(be64(micros)), nil

	case Bytea:
		switch v := value.(type) {
		case []byte:
			return prefixed(v), nil
		case string:
			return prefixed([]byte(v)), nil
		}
		return nil, newConversionError(value, kind)

	case Text:
		switch v := value.(type) {
		case string:
			return prefixed([]byte(v)), nil
		case []byte:
			return prefixed(v), nil
		}
		return nil, newConversionError(value, kind)

	case UUID:
		switch v := value.(type) {
		case uuid.UUID:
			return prefixed(v[:]), nil
		case [16]byte:
			return prefixed(v[:]), nil
		case string:
			parsed, err := uuid.Parse(v)
			if err != nil {
				return nil, newConversionError(value, kind)
			}
			return prefixed(parsed[:]), nil
		}
		return nil, newConversionError(value, kind)
	}

	return nil, NewUnsupportedOID(id)
}

func newConversionError(value any, kind Kind) error {
	return fmt.Errorf("cannot bind a value of type %T as %s", value, kind)
}

// clockMicros returns the clock time of the given value as microseconds
// since midnight, truncated to millisecond granularity.
func clockMicros(v time.Time) int64 {
	seconds := int64(v.Hour())*3600 + int64(v.Minute())*60 + int64(v.Second())
	millis := seconds*1000 + int64(v.Nanosecond()/int(time.Millisecond))
	return millis * 1000
}

// prefixed prepends the four byte big-endian length prefix the Bind message
// expects before every parameter value.
func prefixed(value []byte) []byte {
	out := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(value)))
	copy(out[4:], value)
	return out
}

func be32(v int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out
}

func be64(v int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v))
	return out
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), uint64(v) <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}

	if i, ok := asInt64(value); ok {
		return float64(i), true
	}
	return 0, false
}
