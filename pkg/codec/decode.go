package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq/oid"
)

// Decode converts the binary column encoding for the given type OID back
// into a Go value. The data excludes the per-column length prefix; SQL NULL
// columns (wire length -1) must be handled by the caller before decoding.
// OIDs outside the supported catalogue decode as raw bytes.
func Decode(id oid.Oid, data []byte) (any, error) {
	kind := KindOf(id)

	switch kind {
	case Bool:
		if err := expectSize(kind, data, 1); err != nil {
			return nil, err
		}
		return data[0] != 0, nil

	case Int2:
		if err := expectSize(kind, data, 2); err != nil {
			return nil, err
		}
		return int16(binary.BigEndian.Uint16(data)), nil

	case Int4:
		if err := expectSize(kind, data, 4); err != nil {
			return nil, err
		}
		return int32(binary.BigEndian.Uint32(data)), nil

	case Int8:
		if err := expectSize(kind, data, 8); err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(data)), nil

	case Float4:
		if err := expectSize(kind, data, 4); err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil

	case Float8:
		if err := expectSize(kind, data, 8); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil

	case Date:
		if err := expectSize(kind, data, 4); err != nil {
			return nil, err
		}

		days := int32(binary.BigEndian.Uint32(data))
		return epochDate.AddDate(0, 0, int(days)), nil

	case Time:
		if err := expectSize(kind, data, 8); err != nil {
			return nil, err
		}

		micros := int64(binary.BigEndian.Uint64(data))
		return clockTime(micros, time.UTC), nil

	case TimeTZ:
		if err := expectSize(kind, data, 12); err != nil {
			return nil, err
		}

		micros := int64(binary.BigEndian.Uint64(data[0:8]))
		offset := -int32(binary.BigEndian.Uint32(data[8:12]))
		return clockTime(micros, time.FixedZone("", int(offset))), nil

	case Timestamp:
		if err := expectSize(kind, data, 8); err != nil {
			return nil, err
		}

		micros := int64(binary.BigEndian.Uint64(data))
		return time.UnixMilli(epochMillis + micros/1000).UTC(), nil

	case Text:
		return string(data), nil

	case UUID:
		if err := expectSize(kind, data, 16); err != nil {
			return nil, err
		}

		var v uuid.UUID
		copy(v[:], data)
		return v, nil
	}

	// Bytea and every OID outside the catalogue yield the raw bytes.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func expectSize(kind Kind, data []byte, size int) error {
	if len(data) != size {
		return fmt.Errorf("unexpected %s value length: %d", kind, len(data))
	}
	return nil
}

// clockTime expands microseconds since midnight into a clock-only time
// value in the given location. The date part carries no meaning.
func clockTime(micros int64, loc *time.Location) time.Time {
	millis := micros / 1000
	seconds := millis / 1000
	nanos := int(millis%1000) * int(time.Millisecond)
	return time.Date(1, time.January, 1, 0, 0, int(seconds), nanos, loc)
}
