package pgfront

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/lib/pq/oid"

	"github.com/pgfront/pgfront/pkg/codec"
)

// Query represents a single SQL statement bound to a Connection. A query is
// submitted with Exec for one-shot execution, or with Prepare followed by
// BindValue and ExecPrepared for parameterised execution with binary
// argument encoding.
//
// Completion and failure are reported through the callback fields, which
// must be configured before the query is submitted. A query must outlive
// its membership of the connection's task queue.
type Query struct {
	// ExecuteFinished fires once the server reports readiness after an
	// execution task. PrepareFinished fires instead when the query is
	// prepared and no values have been bound yet.
	ExecuteFinished func()
	PrepareFinished func()

	// Error receives server-reported errors while this query is in flight
	// and binding failures raised locally. Notice receives non-fatal
	// server notices; neither terminates the query.
	Error  func(Message)
	Notice func(Message)

	conn *Connection

	mu          sync.Mutex
	sql         string
	prepared    bool
	prepareDone bool
	name        string
	paramOIDs   []oid.Oid
	binds       []any
	fields      []Field
	rows        [][]byte
}

// NewQuery constructs a new query bound to the given connection.
func NewQuery(conn *Connection) *Query {
	return &Query{conn: conn}
}

// SQL returns the statement text most recently passed to Exec or Prepare.
func (query *Query) SQL() string {
	query.mu.Lock()
	defer query.mu.Unlock()
	return query.sql
}

// Exec submits the given statement for one-shot execution. Prior fields,
// rows and bound parameters are discarded. Completion is reported through
// ExecuteFinished or Error.
func (query *Query) Exec(sql string) {
	if query.conn == nil || sql == "" {
		return
	}

	query.mu.Lock()
	query.prepared = false
	query.reset(sql)
	query.mu.Unlock()

	query.conn.submit(query)
}

// Prepare submits the given statement for server-side preparation under a
// fresh statement name. Completion is reported through PrepareFinished or
// Error; afterwards the parameter descriptors and result fields are
// available and values can be bound.
func (query *Query) Prepare(sql string) {
	if query.conn == nil || sql == "" {
		return
	}

	query.mu.Lock()
	query.prepared = true
	query.name = query.conn.nextStatementName()
	query.reset(sql)
	query.mu.Unlock()

	query.conn.submit(query)
}

// ExecPrepared submits the prepared statement for execution with the
// currently bound values. It is a no-op unless preparation has finished.
func (query *Query) ExecPrepared() {
	if query.conn == nil {
		return
	}

	query.mu.Lock()
	ready := query.prepared && query.prepareDone
	if ready {
		query.rows = nil
	}
	query.mu.Unlock()

	if ready {
		query.conn.submit(query)
	}
}

// BindValue stores a value for the parameter at the given zero-based
// position. Binding is only permitted once preparation has finished and
// before the statement is submitted for execution.
func (query *Query) BindValue(index int, value any) {
	if query.conn == nil || index < 0 {
		return
	}

	query.mu.Lock()
	defer query.mu.Unlock()

	if !query.prepareDone {
		return
	}

	for len(query.binds) <= index {
		query.binds = append(query.binds, nil)
	}
	query.binds[index] = value
}

// BindValues returns the currently bound values in parameter order.
func (query *Query) BindValues() []any {
	query.mu.Lock()
	defer query.mu.Unlock()
	return append([]any(nil), query.binds...)
}

// ParameterOIDs returns the parameter type OIDs the server reported during
// preparation.
func (query *Query) ParameterOIDs() []oid.Oid {
	query.mu.Lock()
	defer query.mu.Unlock()
	return append([]oid.Oid(nil), query.paramOIDs...)
}

// Fields returns the result column descriptors of the most recent
// RowDescription.
func (query *Query) Fields() []Field {
	query.mu.Lock()
	defer query.mu.Unlock()
	return append([]Field(nil), query.fields...)
}

// RowCount returns the number of data rows received.
func (query *Query) RowCount() int {
	query.mu.Lock()
	defer query.mu.Unlock()
	return len(query.rows)
}

// ColumnCount returns the number of result columns.
func (query *Query) ColumnCount() int {
	query.mu.Lock()
	defer query.mu.Unlock()
	return len(query.fields)
}

// Value decodes the column at the given row and column index. The row
// payload is walked on demand; a SQL NULL column yields an untyped nil.
func (query *Query) Value(row, column int) (any, error) {
	query.mu.Lock()
	defer query.mu.Unlock()

	if row < 0 || row >= len(query.rows) {
		return nil, fmt.Errorf("row index out of range: %d", row)
	}

	if column < 0 || column >= len(query.fields) {
		return nil, fmt.Errorf("column index out of range: %d", column)
	}

	data := query.rows[row]
	for i := 0; i <= column; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("malformed row payload: column %d", i)
		}

		size := int32(binary.BigEndian.Uint32(data[:4]))
		data = data[4:]

		if i == column {
			if size == -1 {
				return nil, nil
			}

			if int(size) > len(data) {
				return nil, fmt.Errorf("malformed row payload: column %d", i)
			}

			return codec.Decode(query.fields[i].TypeOID, data[:size])
		}

		if size != -1 {
			data = data[size:]
		}
	}

	return nil, nil
}

// reset clears all state derived from a previous submission. The caller
// holds query.mu.
func (query *Query) reset(sql string) {
	query.sql = sql
	query.prepareDone = false
	query.paramOIDs = nil
	query.binds = nil
	query.fields = nil
	query.rows = nil
}

// task returns a snapshot of the fields the connection needs to serialise
// the next request for this query.
func (query *Query) task() (prepared, prepareDone bool, name, sql string) {
	query.mu.Lock()
	defer query.mu.Unlock()
	return query.prepared, query.prepareDone, query.name, query.sql
}

// bindings returns the statement name, parameter descriptors and bound
// values needed to serialise a Bind message.
func (query *Query) bindings() (name string, oids []oid.Oid, values []any) {
	query.mu.Lock()
	defer query.mu.Unlock()
	return query.name, query.paramOIDs, query.binds
}

// addParameterOID records a parameter descriptor received through
// ParameterDescription.
func (query *Query) addParameterOID(id oid.Oid) {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.paramOIDs = append(query.paramOIDs, id)
}

// setFields records the result columns received through RowDescription.
func (query *Query) setFields(fields []Field) {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.fields = append(query.fields, fields...)
}

// addRow retains a DataRow payload (column count prefix already stripped)
// verbatim for later decoding through Value.
func (query *Query) addRow(payload []byte) {
	row := make([]byte, len(payload))
	copy(row, payload)

	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = append(query.rows, row)
}

// finish resolves which completion callback ends the current task: a
// prepared query without bound values completes its preparation, anything
// else completes an execution.
func (query *Query) finish() func() {
	query.mu.Lock()
	defer query.mu.Unlock()

	if query.prepared && len(query.binds) == 0 {
		query.prepareDone = true
		return query.PrepareFinished
	}

	return query.ExecuteFinished
}

// fail returns the query error callback bound to the given message.
func (query *Query) fail(message Message) func() {
	if query.Error == nil {
		return nil
	}

	return func() { query.Error(message) }
}

// notify returns the query notice callback bound to the given message.
func (query *Query) notify(message Message) func() {
	if query.Notice == nil {
		return nil
	}

	return func() { query.Notice(message) }
}
