package pgfront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lib/pq/oid"

	"github.com/pgfront/pgfront/pkg/buffer"
	"github.com/pgfront/pgfront/pkg/types"
)

// Connection owns a single TCP connection to a Postgres server and drives
// the protocol state machine: startup, MD5 authentication, and strictly
// serialised execution of the queries in its task queue.
//
// Dial is non-blocking; readiness and failures are reported through the
// callback fields, which must be configured before Dial is called. All
// inbound frames are dispatched by a single reader goroutine; callbacks
// are never invoked while internal locks are held.
type Connection struct {
	// Connected fires once authentication has completed. Disconnected
	// fires when an authenticated session ends. Error receives transport,
	// framing and authentication failures, and server errors observed
	// while no query is in flight. Notice receives server notices outside
	// a query.
	Connected    func()
	Disconnected func()
	Error        func(Message)
	Notice       func(Message)

	logger *slog.Logger

	host     string
	port     uint16
	user     string
	password string
	database string

	bufferSize   int
	closeTimeout time.Duration

	mu            sync.Mutex
	conn          net.Conn
	reader        *buffer.Reader
	writer        *buffer.Writer
	dialing       bool
	closed        bool
	authenticated bool
	parameters    map[string]string
	processID     uint32
	secretKey     uint32
	tasks         []*Query
	complete      bool
	statements    uint64
}

// Dial establishes the connection asynchronously: it spawns the reader
// goroutine which connects, performs the startup handshake and dispatches
// inbound frames until the connection dies. Success is announced through
// the Connected callback. Dial returns an error only when the connection
// has already been dialed or closed.
func (conn *Connection) Dial(ctx context.Context) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return errors.New("connection has been closed")
	}

	if conn.dialing {
		return errors.New("connection has already been dialed")
	}

	conn.dialing = true
	go conn.run(ctx)
	return nil
}

// IsConnected reports whether the session has authenticated successfully
// and has not been closed.
func (conn *Connection) IsConnected() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.authenticated
}

// ParameterStatus returns the current value of the given session parameter
// as reported by the server, or the empty string when unknown.
func (conn *Connection) ParameterStatus(name string) string {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.parameters[name]
}

// BackendKeyData returns the backend process id and secret key received
// during startup. They are retained for future cancellation support.
func (conn *Connection) BackendKeyData() (processID, secretKey uint32) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.processID, conn.secretKey
}

// Close terminates the session. When authenticated a Terminate message is
// written under a short deadline before the socket is shut down, and the
// Disconnected callback fires. Close is idempotent.
func (conn *Connection) Close() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}

	conn.closed = true
	transport := conn.conn
	authenticated := conn.authenticated
	conn.authenticated = false
	conn.processID = 0
	conn.secretKey = 0

	var err error
	if transport != nil {
		if authenticated {
			_ = transport.SetWriteDeadline(time.Now().Add(conn.closeTimeout))
			conn.writer.Start(types.ClientTerminate)
			err = conn.writer.End()
		}

		if cerr := transport.Close(); err == nil {
			err = cerr
		}
	}
	conn.mu.Unlock()

	if authenticated && conn.Disconnected != nil {
		conn.Disconnected()
	}
	return err
}

// run is the reader goroutine: dial, startup, then frame dispatch until
// the transport dies or the session is closed.
func (conn *Connection) run(ctx context.Context) {
	dialer := net.Dialer{}
	address := fmt.Sprintf("%s:%d", conn.host, conn.port)

	transport, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		conn.fatal(local(err.Error()))
		return
	}

	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		_ = transport.Close()
		return
	}

	conn.conn = transport
	conn.reader = buffer.NewReader(conn.logger, transport, conn.bufferSize)
	conn.writer = buffer.NewWriter(conn.logger, transport)
	err = conn.writeStartup()
	conn.mu.Unlock()

	if err != nil {
		conn.fatal(local(err.Error()))
		return
	}

	for {
		t, _, err := conn.reader.ReadTypedMsg()
		if err != nil {
			conn.readFailure(err)
			return
		}

		if err := conn.dispatch(t); err != nil {
			conn.fatal(local(err.Error()))
			return
		}
	}
}

// readFailure classifies a failed frame read. A read that dies because the
// session was closed locally is silent; a frame truncated after the server
// already completed a command is the fatal segmentation case; everything
// else surfaces as a transport error.
func (conn *Connection) readFailure(err error) {
	conn.mu.Lock()
	closed := conn.closed
	complete := conn.complete
	conn.mu.Unlock()

	if closed {
		return
	}

	switch {
	case errors.Is(err, io.ErrUnexpectedEOF) && complete:
		conn.fatal(local("data segmentation error"))
	case errors.Is(err, io.EOF):
		conn.fatal(local("connection reset by the server"))
	default:
		conn.fatal(local(err.Error()))
	}
}

// fatal closes the transport and reports the given message through the
// connection error callback.
func (conn *Connection) fatal(message Message) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}

	conn.closed = true
	transport := conn.conn
	authenticated := conn.authenticated
	conn.authenticated = false
	conn.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}

	if conn.Error != nil {
		conn.Error(message)
	}

	if authenticated && conn.Disconnected != nil {
		conn.Disconnected()
	}
}

// dispatch routes a single inbound frame. A returned error is fatal to the
// connection.
func (conn *Connection) dispatch(t types.ServerMessage) error {
	switch t {
	case types.ServerAuth:
		return conn.handleAuth()
	case types.ServerParameterStatus:
		return conn.handleParameterStatus()
	case types.ServerBackendKeyData:
		return conn.handleBackendKeyData()
	case types.ServerReady:
		return conn.handleReady()
	case types.ServerParameterDescription:
		return conn.handleParameterDescription()
	case types.ServerRowDescription:
		return conn.handleRowDescription()
	case types.ServerDataRow:
		return conn.handleDataRow()
	case types.ServerCommandComplete:
		conn.mu.Lock()
		conn.complete = true
		conn.mu.Unlock()
		return nil
	case types.ServerParseComplete, types.ServerBindComplete, types.ServerNoData, types.ServerEmptyQuery:
		return nil
	case types.ServerErrorResponse:
		conn.routeMessage(parseMessage(conn.reader.Remaining()), false)
		return nil
	case types.ServerNoticeResponse:
		conn.routeMessage(parseMessage(conn.reader.Remaining()), true)
		return nil
	case types.ServerNegotiateVersion:
		return errors.New("protocol version 3.0 is not supported by the server")
	default:
		return fmt.Errorf("unsupported message type in the protocol: %s", string(t))
	}
}

// handleAuth answers an authentication request. Only the MD5 challenge and
// the final ok are supported.
func (conn *Connection) handleAuth() error {
	code, err := conn.reader.GetUint32()
	if err != nil {
		return err
	}

	switch types.AuthType(code) {
	case types.AuthMD5Password:
		salt, err := conn.reader.GetBytes(4)
		if err != nil {
			return err
		}

		conn.mu.Lock()
		err = conn.writePassword(salt)
		conn.mu.Unlock()
		return err

	case types.AuthOK:
		conn.mu.Lock()
		conn.authenticated = true
		conn.mu.Unlock()

		if conn.Connected != nil {
			conn.Connected()
		}
		return nil

	default:
		return fmt.Errorf("authorization error: unsupported authentication method %d", code)
	}
}

func (conn *Connection) handleParameterStatus() error {
	name, err := conn.reader.GetString()
	if err != nil {
		return err
	}

	value, err := conn.reader.GetString()
	if err != nil {
		return err
	}

	conn.logger.Debug("session parameter", slog.String("name", name), slog.String("value", value))

	conn.mu.Lock()
	if conn.parameters == nil {
		conn.parameters = make(map[string]string)
	}
	conn.parameters[name] = value
	conn.mu.Unlock()
	return nil
}

func (conn *Connection) handleBackendKeyData() error {
	processID, err := conn.reader.GetUint32()
	if err != nil {
		return err
	}

	secretKey, err := conn.reader.GetUint32()
	if err != nil {
		return err
	}

	conn.mu.Lock()
	conn.processID = processID
	conn.secretKey = secretKey
	conn.mu.Unlock()
	return nil
}

// handleReady processes ReadyForQuery. Idle and in-transaction statuses end
// the task in flight; a failed transaction leaves the queue untouched until
// the next readiness report.
func (conn *Connection) handleReady() error {
	status, err := conn.reader.GetByte()
	if err != nil {
		return err
	}

	switch types.ServerStatus(status) {
	case types.ServerIdle, types.ServerTransaction:
		conn.endTask()
	case types.ServerTransactionFailed:
	}
	return nil
}

func (conn *Connection) handleParameterDescription() error {
	count, err := conn.reader.GetUint16()
	if err != nil {
		return err
	}

	query := conn.head()
	for i := uint16(0); i < count; i++ {
		id, err := conn.reader.GetUint32()
		if err != nil {
			return err
		}

		if query != nil {
			query.addParameterOID(oid.Oid(id))
		}
	}
	return nil
}

func (conn *Connection) handleRowDescription() error {
	fields, err := parseRowDescription(conn.reader)
	if err != nil {
		return err
	}

	if query := conn.head(); query != nil {
		query.setFields(fields)
	}
	return nil
}

func (conn *Connection) handleDataRow() error {
	// Strip the column count; the per-column encodings are kept verbatim.
	if _, err := conn.reader.GetUint16(); err != nil {
		return err
	}

	if query := conn.head(); query != nil {
		query.addRow(conn.reader.Remaining())
	}
	return nil
}

// routeMessage delivers a server error or notice to the query in flight,
// falling back to the connection callbacks when the queue is empty.
func (conn *Connection) routeMessage(message Message, notice bool) {
	query := conn.head()

	var deliver func()
	switch {
	case query != nil && notice:
		deliver = query.notify(message)
	case query != nil:
		deliver = query.fail(message)
	case notice && conn.Notice != nil:
		deliver = func() { conn.Notice(message) }
	case !notice && conn.Error != nil:
		deliver = func() { conn.Error(message) }
	}

	if deliver != nil {
		deliver()
	}
}

func (conn *Connection) head() *Query {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if len(conn.tasks) == 0 {
		return nil
	}
	return conn.tasks[0]
}

// nextStatementName derives a unique statement name from the connection's
// monotonically increasing counter.
func (conn *Connection) nextStatementName() string {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	conn.statements++
	return fmt.Sprintf("stmt_%d", conn.statements)
}
