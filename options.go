package pgfront

import (
	"log/slog"
	"time"
)

// OptionFn options pattern used to configure a connection before dialing.
type OptionFn func(*Connection)

// Logger sets the logger used to trace protocol frames and session events.
func Logger(logger *slog.Logger) OptionFn {
	return func(conn *Connection) {
		conn.logger = logger
	}
}

// Host sets the server host to dial.
func Host(host string) OptionFn {
	return func(conn *Connection) {
		conn.host = host
	}
}

// Port sets the server port to dial.
func Port(port uint16) OptionFn {
	return func(conn *Connection) {
		conn.port = port
	}
}

// User sets the user the session authenticates as.
func User(user string) OptionFn {
	return func(conn *Connection) {
		conn.user = user
	}
}

// Password sets the password used to answer the MD5 challenge.
func Password(password string) OptionFn {
	return func(conn *Connection) {
		conn.password = password
	}
}

// Database sets the database the session opens. When unset the server
// falls back to the database named after the user.
func Database(database string) OptionFn {
	return func(conn *Connection) {
		conn.database = database
	}
}

// MessageBufferSize sets the maximum accepted server frame size in bytes.
func MessageBufferSize(size int) OptionFn {
	return func(conn *Connection) {
		conn.bufferSize = size
	}
}

// CloseTimeout bounds the wait for the Terminate message to flush during a
// graceful close.
func CloseTimeout(timeout time.Duration) OptionFn {
	return func(conn *Connection) {
		conn.closeTimeout = timeout
	}
}
