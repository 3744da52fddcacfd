// Package mock implements a scriptable Postgres backend used to exercise
// the frontend against controlled frame sequences.
package mock

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
)

// Script drives a single accepted client connection. The raw transport is
// exposed alongside the backend for scripts that write malformed frames or
// impose read deadlines.
type Script func(t *testing.T, conn net.Conn, backend *pgproto3.Backend)

// Server is a single-connection Postgres backend whose behaviour is fully
// scripted by the test.
type Server struct {
	t        testing.TB
	listener net.Listener
	done     chan struct{}
}

// Listen opens a backend on an unallocated port inside the local network
// and serves exactly one client connection with the given script. The
// address to dial is returned.
func Listen(t *testing.T, script Script) *net.TCPAddr {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := &Server{
		t:        t,
		listener: listener,
		done:     make(chan struct{}),
	}

	t.Cleanup(func() {
		_ = listener.Close()
		<-srv.done
	})

	go srv.serve(script)
	return listener.Addr().(*net.TCPAddr)
}

func (srv *Server) serve(script Script) {
	defer close(srv.done)

	conn, err := srv.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	backend := pgproto3.NewBackend(conn, conn)

	t, ok := srv.t.(*testing.T)
	if !ok {
		return
	}

	script(t, conn, backend)

	// keep the connection open until the client walks away so tests can
	// assert the absence of further events
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, _ = io.Copy(io.Discard, conn)
}

// Handshake consumes the startup message and performs the MD5 exchange:
// challenge, digest verification, AuthenticationOk, session preamble and
// the first ReadyForQuery.
func Handshake(t *testing.T, backend *pgproto3.Backend, salt [4]byte, user, password string) map[string]string {
	t.Helper()

	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		t.Errorf("receiving startup message: %s", err)
		return nil
	}

	msg, ok := startup.(*pgproto3.StartupMessage)
	if !ok {
		t.Errorf("unexpected startup message %T", startup)
		return nil
	}

	backend.Send(&pgproto3.AuthenticationMD5Password{Salt: salt})
	if err := backend.Flush(); err != nil {
		t.Errorf("writing MD5 challenge: %s", err)
		return nil
	}

	response, err := backend.Receive()
	if err != nil {
		t.Errorf("receiving password message: %s", err)
		return nil
	}

	pass, ok := response.(*pgproto3.PasswordMessage)
	if !ok {
		t.Errorf("unexpected password message %T", response)
		return nil
	}

	if expected := MD5Digest(user, password, salt); pass.Password != expected {
		t.Errorf("unexpected MD5 digest %s, expected %s", pass.Password, expected)
		return nil
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "13.0"})
	backend.Send(&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"})
	backend.Send(&pgproto3.BackendKeyData{ProcessID: 42, SecretKey: 1984})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		t.Errorf("writing session preamble: %s", err)
		return nil
	}

	return msg.Parameters
}

// MD5Digest computes the password digest the frontend is expected to send:
// "md5" || hex(md5(hex(md5(password || user)) || salt)).
func MD5Digest(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	hexed := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(hexed), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

// ExpectSimpleExec consumes the frame sequence of a one-shot execution
// (Parse, Bind, Describe, Execute, Sync) and returns the statement text.
func ExpectSimpleExec(t *testing.T, backend *pgproto3.Backend) string {
	t.Helper()

	parse := expect[*pgproto3.Parse](t, backend)
	expect[*pgproto3.Bind](t, backend)
	expect[*pgproto3.Describe](t, backend)
	expect[*pgproto3.Execute](t, backend)
	expect[*pgproto3.Sync](t, backend)

	if parse == nil {
		return ""
	}
	return parse.Query
}

// ExpectPrepare consumes the frame sequence of a preparation (Parse,
// Describe statement, Sync) and returns the statement name and text.
func ExpectPrepare(t *testing.T, backend *pgproto3.Backend) (name, sql string) {
	t.Helper()

	parse := expect[*pgproto3.Parse](t, backend)
	describe := expect[*pgproto3.Describe](t, backend)
	expect[*pgproto3.Sync](t, backend)

	if parse == nil || describe == nil {
		return "", ""
	}

	if describe.ObjectType != 'S' || describe.Name != parse.Name {
		t.Errorf("unexpected describe target %c %q", describe.ObjectType, describe.Name)
	}

	return parse.Name, parse.Query
}

// ExpectBindExec consumes the frame sequence of a prepared execution
// (Bind, Execute, Sync) and returns the received Bind message.
func ExpectBindExec(t *testing.T, backend *pgproto3.Backend) *pgproto3.Bind {
	t.Helper()

	bind := expect[*pgproto3.Bind](t, backend)
	expect[*pgproto3.Execute](t, backend)
	expect[*pgproto3.Sync](t, backend)
	return bind
}

// WriteRows sends a RowDescription followed by the given rows, a
// CommandComplete and ReadyForQuery carrying the given transaction status.
func WriteRows(t *testing.T, backend *pgproto3.Backend, fields []pgproto3.FieldDescription, rows [][][]byte, status byte) {
	t.Helper()

	backend.Send(&pgproto3.RowDescription{Fields: fields})
	for _, row := range rows {
		backend.Send(&pgproto3.DataRow{Values: row})
	}
	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: status})

	if err := backend.Flush(); err != nil {
		t.Errorf("writing result set: %s", err)
	}
}

// Column constructs a binary-format result column descriptor.
func Column(name string, dataType uint32) pgproto3.FieldDescription {
	return pgproto3.FieldDescription{
		Name:         []byte(name),
		DataTypeOID:  dataType,
		DataTypeSize: -1,
		TypeModifier: -1,
		Format:       1,
	}
}

// ExpectTerminate consumes the Terminate message a graceful close sends.
func ExpectTerminate(t *testing.T, backend *pgproto3.Backend) {
	t.Helper()
	expect[*pgproto3.Terminate](t, backend)
}

func expect[T pgproto3.FrontendMessage](t *testing.T, backend *pgproto3.Backend) T {
	t.Helper()

	var zero T
	msg, err := backend.Receive()
	if err != nil {
		t.Errorf("receiving frontend message: %s", err)
		return zero
	}

	typed, ok := msg.(T)
	if !ok {
		t.Errorf("unexpected frontend message %T", msg)
		return zero
	}

	return typed
}
