// Package codec converts between Go values and the PostgreSQL binary wire
// format for a closed catalogue of type OIDs. Values outside the catalogue
// are rejected when encoding and fall back to raw bytes when decoding.
package codec

import (
	"fmt"
	"time"

	"github.com/lib/pq/oid"
)

// Kind identifies the semantic family a type OID belongs to. The set of
// kinds is closed; dispatch happens through a lookup table rather than an
// open registry.
type Kind int

const (
	Unknown Kind = iota
	Bool
	Int2
	Int4
	Int8
	Float4
	Float8
	Date
	Time
	TimeTZ
	Timestamp
	Bytea
	Text
	UUID
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "BOOL"
	case Int2:
		return "INT2"
	case Int4:
		return "INT4"
	case Int8:
		return "INT8"
	case Float4:
		return "FLOAT4"
	case Float8:
		return "FLOAT8"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case TimeTZ:
		return "TIMETZ"
	case Timestamp:
		return "TIMESTAMP"
	case Bytea:
		return "BYTEA"
	case Text:
		return "TEXT"
	case UUID:
		return "UUID"
	default:
		return "UNKNOWN"
	}
}

var kinds = map[oid.Oid]Kind{
	oid.T_bool:        Bool,
	oid.T_int2:        Int2,
	oid.T_int4:        Int4,
	oid.T_void:        Int4,
	oid.T_regproc:     Int4,
	oid.T_xid:         Int4,
	oid.T_cid:         Int4,
	oid.T_int8:        Int8,
	oid.T_float4:      Float4,
	oid.T_float8:      Float8,
	oid.T_date:        Date,
	oid.T_time:        Time,
	oid.T_timetz:      TimeTZ,
	oid.T_timestamp:   Timestamp,
	oid.T_timestamptz: Timestamp,
	oid.T_bytea:       Bytea,
	oid.T_char:        Text,
	oid.T_varchar:     Text,
	oid.T_text:        Text,
	oid.T_uuid:        UUID,
}

// KindOf returns the semantic kind of the given type OID, or Unknown when
// the OID is outside the supported catalogue.
func KindOf(id oid.Oid) Kind {
	return kinds[id]
}

// The backend's date/time epoch is 2000-01-01. Timestamps travel as signed
// microseconds relative to that instant in UTC; dates as signed days.
const epochMillis int64 = 946684800000

var epochDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewUnsupportedOID constructs the error reported when a parameter is bound
// against a type OID outside the supported catalogue.
func NewUnsupportedOID(id oid.Oid) error {
	return fmt.Errorf("The binding does not support the type OID: %d", id)
}

// NewBindingSizeMismatch constructs the error reported when the number of
// bound values does not match the statement's parameter descriptors.
func NewBindingSizeMismatch(got, want int) error {
	return fmt.Errorf("Incorrect value binding size: %d != %d", got, want)
}
