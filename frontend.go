package pgfront

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/lib/pq/oid"

	"github.com/pgfront/pgfront/pkg/codec"
	"github.com/pgfront/pgfront/pkg/types"
)

// The builders below serialise the frontend half of the protocol through
// the frame writer. All of them expect conn.mu to be held; the writer
// patches each frame's length prefix once the payload is complete.

const binaryFormat int16 = 1

// writeStartup sends the startup message: protocol version 3.0 followed by
// the connection parameters. The client always pins client_encoding so the
// codec can decode text columns as UTF-8.
func (conn *Connection) writeStartup() error {
	conn.writer.StartStartup()
	conn.writer.AddInt32(int32(types.Version30))

	conn.writer.AddString("user")
	conn.writer.AddNullTerminate()
	conn.writer.AddString(conn.user)
	conn.writer.AddNullTerminate()

	if conn.database != "" {
		conn.writer.AddString("database")
		conn.writer.AddNullTerminate()
		conn.writer.AddString(conn.database)
		conn.writer.AddNullTerminate()
	}

	conn.writer.AddString("client_encoding")
	conn.writer.AddNullTerminate()
	conn.writer.AddString("UTF8")
	conn.writer.AddNullTerminate()

	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

// writePassword answers an MD5 challenge with the digest of the credentials
// and the four byte salt.
func (conn *Connection) writePassword(salt []byte) error {
	conn.writer.Start(types.ClientPassword)
	conn.writer.AddString(md5Digest(conn.user, conn.password, salt))
	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

// md5Digest computes the challenge response:
// "md5" || hex(md5(hex(md5(password || user)) || salt)).
func md5Digest(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	hexed := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(hexed), salt...))
	return "md5" + hex.EncodeToString(outer[:])
}

// writeSimpleExec serialises the one-shot execution sequence: Parse with
// the unnamed statement, Bind with no parameters and a binary result
// format, Describe portal, Execute, Sync.
func (conn *Connection) writeSimpleExec(sql string) error {
	conn.writer.Start(types.ClientParse)
	conn.writer.AddNullTerminate() // unnamed statement
	conn.writer.AddString(sql)
	conn.writer.AddNullTerminate()
	conn.writer.AddInt16(0) // no parameter type hints
	if err := conn.writer.End(); err != nil {
		return err
	}

	conn.writer.Start(types.ClientBind)
	conn.writer.AddNullTerminate() // unnamed portal
	conn.writer.AddNullTerminate() // unnamed statement
	conn.writer.AddInt16(0)        // no parameter format codes
	conn.writer.AddInt16(0)        // no parameters
	conn.writer.AddInt16(1)        // one result format code
	conn.writer.AddInt16(binaryFormat)
	if err := conn.writer.End(); err != nil {
		return err
	}

	conn.writer.Start(types.ClientDescribe)
	conn.writer.AddByte(byte(types.DescribePortal))
	conn.writer.AddNullTerminate()
	if err := conn.writer.End(); err != nil {
		return err
	}

	return conn.writeExecuteSync()
}

// writePrepare serialises the preparation sequence: Parse under the
// statement name, Describe statement, Sync. The server answers with
// ParameterDescription and RowDescription (or NoData).
func (conn *Connection) writePrepare(name, sql string) error {
	conn.writer.Start(types.ClientParse)
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	conn.writer.AddString(sql)
	conn.writer.AddNullTerminate()
	conn.writer.AddInt16(0) // the server infers the parameter types
	if err := conn.writer.End(); err != nil {
		return err
	}

	conn.writer.Start(types.ClientDescribe)
	conn.writer.AddByte(byte(types.DescribeStatement))
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	if err := conn.writer.End(); err != nil {
		return err
	}

	conn.writer.Start(types.ClientSync)
	return conn.writer.End()
}

// writeBind serialises Bind for the prepared statement with the given
// pre-encoded parameters (each carrying its length prefix), followed by
// Execute and Sync. All parameters and results travel in binary format.
func (conn *Connection) writeBind(name string, params [][]byte) error {
	conn.writer.Start(types.ClientBind)
	conn.writer.AddNullTerminate() // unnamed portal
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()

	if len(params) == 0 {
		conn.writer.AddInt16(0) // no parameter format codes
		conn.writer.AddInt16(0) // no parameters
	} else {
		conn.writer.AddInt16(1) // one format code applied to all parameters
		conn.writer.AddInt16(binaryFormat)
		conn.writer.AddInt16(int16(len(params)))
		for _, param := range params {
			conn.writer.AddBytes(param)
		}
	}

	conn.writer.AddInt16(1) // one result format code
	conn.writer.AddInt16(binaryFormat)
	if err := conn.writer.End(); err != nil {
		return err
	}

	return conn.writeExecuteSync()
}

func (conn *Connection) writeExecuteSync() error {
	conn.writer.Start(types.ClientExecute)
	conn.writer.AddNullTerminate() // unnamed portal
	conn.writer.AddInt32(0)        // no row limit
	if err := conn.writer.End(); err != nil {
		return err
	}

	conn.writer.Start(types.ClientSync)
	return conn.writer.End()
}

// encodeBindings converts the bound values into their binary parameter
// encodings in descriptor order. The binding count must match the
// statement's parameter descriptors exactly.
func encodeBindings(oids []oid.Oid, values []any) ([][]byte, error) {
	if len(values) != len(oids) {
		return nil, codec.NewBindingSizeMismatch(len(values), len(oids))
	}

	if len(values) == 0 {
		return nil, nil
	}

	params := make([][]byte, 0, len(values))
	for i, id := range oids {
		if codec.KindOf(id) == codec.Unknown {
			return nil, codec.NewUnsupportedOID(id)
		}

		encoded, err := codec.Encode(id, values[i])
		if err != nil {
			return nil, err
		}

		params = append(params, encoded)
	}

	return params, nil
}
