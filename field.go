package pgfront

import (
	"github.com/lib/pq/oid"

	"github.com/pgfront/pgfront/pkg/buffer"
	"github.com/pgfront/pgfront/pkg/codec"
)

// Field describes a single result column as reported by a RowDescription
// message, together with the semantic kind the codec derived from its
// type OID.
// https://www.postgresql.org/docs/current/catalog-pg-attribute.html
type Field struct {
	Name         string
	TableOID     uint32
	ColumnIndex  uint16
	TypeOID      oid.Oid
	TypeSize     int16
	TypeModifier int32
	Format       int16
	Kind         codec.Kind
}

// parseRowDescription consumes a RowDescription payload from the given
// reader and returns the described fields in column order.
func parseRowDescription(reader *buffer.Reader) ([]Field, error) {
	count, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, count)
	for i := uint16(0); i < count; i++ {
		var field Field

		field.Name, err = reader.GetString()
		if err != nil {
			return nil, err
		}

		field.TableOID, err = reader.GetUint32()
		if err != nil {
			return nil, err
		}

		field.ColumnIndex, err = reader.GetUint16()
		if err != nil {
			return nil, err
		}

		typeOID, err := reader.GetUint32()
		if err != nil {
			return nil, err
		}

		field.TypeOID = oid.Oid(typeOID)
		field.Kind = codec.KindOf(field.TypeOID)

		field.TypeSize, err = reader.GetInt16()
		if err != nil {
			return nil, err
		}

		field.TypeModifier, err = reader.GetInt32()
		if err != nil {
			return nil, err
		}

		field.Format, err = reader.GetInt16()
		if err != nil {
			return nil, err
		}

		fields = append(fields, field)
	}

	return fields, nil
}
