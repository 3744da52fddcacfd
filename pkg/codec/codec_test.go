package codec

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encoded strips the length prefix Encode prepends to every parameter.
func encoded(t *testing.T, id oid.Oid, value any) []byte {
	t.Helper()

	out, err := Encode(id, value)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 4)
	return out[4:]
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		oid   oid.Oid
		value any
	}{
		"bool true":    {oid.T_bool, true},
		"bool false":   {oid.T_bool, false},
		"int2":         {oid.T_int2, int16(-12345)},
		"int4":         {oid.T_int4, int32(1)},
		"int8 max":     {oid.T_int8, int64(9223372036854775807)},
		"int8 min":     {oid.T_int8, int64(-9223372036854775808)},
		"float4":       {oid.T_float4, float32(3.5)},
		"float8":       {oid.T_float8, float64(-2.25)},
		"bytea":        {oid.T_bytea, []byte{0x00, 0xFF, 0x10}},
		"text":         {oid.T_text, "héllo wörld"},
		"varchar":      {oid.T_varchar, "varchar"},
		"uuid":         {oid.T_uuid, uuid.MustParse("67e55044-10b1-426f-9247-bb680e5fe0c8")},
		"date":         {oid.T_date, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)},
		"date pre-2k":  {oid.T_date, time.Date(1995, time.June, 15, 0, 0, 0, 0, time.UTC)},
		"timestamp":    {oid.T_timestamp, time.Date(2024, time.March, 5, 1, 2, 3, 250*int(time.Millisecond), time.UTC)},
		"timestamp tz": {oid.T_timestamptz, time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}

	for name, test := range tests {
		test := test
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			decoded, err := Decode(test.oid, encoded(t, test.oid, test.value))
			require.NoError(t, err)

			if expected, ok := test.value.(time.Time); ok {
				clock, ok := decoded.(time.Time)
				require.True(t, ok)
				assert.True(t, expected.Equal(clock), "expected %s, got %s", expected, clock)
				return
			}

			assert.Equal(t, test.value, decoded)
		})
	}
}

func TestRoundTripTime(t *testing.T) {
	t.Parallel()

	value := time.Date(2024, time.March, 5, 13, 26, 44, 517*int(time.Millisecond), time.UTC)
	decoded, err := Decode(oid.T_time, encoded(t, oid.T_time, value))
	require.NoError(t, err)

	clock, ok := decoded.(time.Time)
	require.True(t, ok)

	assert.Equal(t, 13, clock.Hour())
	assert.Equal(t, 26, clock.Minute())
	assert.Equal(t, 44, clock.Second())
	assert.Equal(t, 517*int(time.Millisecond), clock.Nanosecond())
}

func TestRoundTripTimeTZ(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("", 3*3600)
	value := time.Date(2024, time.March, 5, 13, 26, 44, 517*int(time.Millisecond), zone)

	decoded, err := Decode(oid.T_timetz, encoded(t, oid.T_timetz, value))
	require.NoError(t, err)

	clock, ok := decoded.(time.Time)
	require.True(t, ok)

	assert.Equal(t, 13, clock.Hour())
	assert.Equal(t, 26, clock.Minute())
	assert.Equal(t, 44, clock.Second())

	_, offset := clock.Zone()
	assert.Equal(t, 3*3600, offset)
}

// TestTimestampEpochIdentity asserts that the backend epoch encodes as
// eight zero bytes.
func TestTimestampEpochIdentity(t *testing.T) {
	t.Parallel()

	value := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, make([]byte, 8), encoded(t, oid.T_timestamp, value))
}

// TestTimeTZWire asserts the full parameter encoding of a time with time
// zone value: length 12, microseconds since midnight at millisecond
// granularity, and the negated zone offset.
func TestTimeTZWire(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("", 3*3600)
	value := time.Date(2000, time.January, 1, 13, 26, 44, 517*int(time.Millisecond), zone)

	out, err := Encode(oid.T_timetz, value)
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x00, 0x00, 0x0C,
		0x00, 0x00, 0x00, 0x0B, 0x45, 0x22, 0x50, 0x88, // 48404517000 µs
		0xFF, 0xFF, 0xD5, 0xD0, // -10800 seconds
	}
	assert.Equal(t, expected, out)
}

// TestTimeTZOffsetSign asserts that positive UTC offsets travel negated.
func TestTimeTZOffsetSign(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		offset int
		wire   []byte
	}{
		"+03:00": {3 * 3600, []byte{0xFF, 0xFF, 0xD5, 0xD0}},
		"+05:30": {5*3600 + 30*60, []byte{0xFF, 0xFF, 0xB2, 0xA8}},
		"-08:00": {-8 * 3600, []byte{0x00, 0x00, 0x70, 0x80}},
		"UTC":    {0, []byte{0x00, 0x00, 0x00, 0x00}},
	}

	for name, test := range tests {
		test := test
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			value := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.FixedZone("", test.offset))
			out := encoded(t, oid.T_timetz, value)
			require.Len(t, out, 12)
			assert.Equal(t, test.wire, out[8:12])
		})
	}
}

func TestMillisecondTruncation(t *testing.T) {
	t.Parallel()

	value := time.Date(2024, time.March, 5, 1, 2, 3, 123456789, time.UTC)
	decoded, err := Decode(oid.T_timestamp, encoded(t, oid.T_timestamp, value))
	require.NoError(t, err)

	clock, ok := decoded.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 123*int(time.Millisecond), clock.Nanosecond())
}

func TestIntegerCoercion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x2A}, func() []byte {
		out, err := Encode(oid.T_int4, 42)
		require.NoError(t, err)
		return out
	}())

	_, err := Encode(oid.T_int2, 1<<20)
	assert.Error(t, err)

	_, err = Encode(oid.T_int4, "not a number")
	assert.Error(t, err)
}

func TestInt4Aliases(t *testing.T) {
	t.Parallel()

	for _, id := range []oid.Oid{oid.T_int4, oid.T_void, oid.T_regproc, oid.T_xid, oid.T_cid} {
		assert.Equal(t, Int4, KindOf(id), "oid %d", id)
	}
}

func TestDecodeUnknownOIDFallsBack(t *testing.T) {
	t.Parallel()

	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	decoded, err := Decode(oid.Oid(600), raw)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestEncodeUnknownOID(t *testing.T) {
	t.Parallel()

	_, err := Encode(oid.Oid(600), 1)
	require.Error(t, err)
	assert.Equal(t, "The binding does not support the type OID: 600", err.Error())
}

func TestBindingSizeMismatchMessage(t *testing.T) {
	t.Parallel()

	err := NewBindingSizeMismatch(1, 2)
	assert.Equal(t, "Incorrect value binding size: 1 != 2", err.Error())
}

func TestDecodeSizeValidation(t *testing.T) {
	t.Parallel()

	_, err := Decode(oid.T_int8, []byte{0x00})
	assert.Error(t, err)

	_, err = Decode(oid.T_uuid, []byte{0x00, 0x01})
	assert.Error(t, err)
}
