// Package pgfront implements a minimal frontend for version 3.0 of the
// PostgreSQL wire protocol: a single TCP connection with MD5 password
// authentication, one-shot statement execution, and prepared statements
// with binary parameter encoding and binary result decoding.
//
// A Connection serialises its queries strictly one at a time; completion
// and failure are delivered through callbacks so the library composes with
// whatever loop drives the host application.
package pgfront

import (
	"log/slog"
	"time"
)

// Connection defaults applied when the matching option is not given.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort     uint16 = 5432
	DefaultUser            = "postgres"
	DefaultPassword        = "postgres"

	DefaultCloseTimeout = 5 * time.Second
)

// New constructs a connection using the given options. The connection does
// not touch the network until Dial is called; callbacks should be
// configured in between.
func New(options ...OptionFn) *Connection {
	conn := &Connection{
		logger:       slog.Default(),
		host:         DefaultHost,
		port:         DefaultPort,
		user:         DefaultUser,
		password:     DefaultPassword,
		closeTimeout: DefaultCloseTimeout,
		parameters:   make(map[string]string),
	}

	for _, option := range options {
		option(conn)
	}

	return conn
}
