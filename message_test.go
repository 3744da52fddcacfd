package pgfront

import "testing"

func TestParseMessage(t *testing.T) {
	payload := []byte("SERROR\x00C42P01\x00Mrelation \"missing\" does not exist\x00\x00")
	message := parseMessage(payload)

	if message.Severity != "ERROR" {
		t.Errorf("unexpected severity %q", message.Severity)
	}

	if message.Code != "42P01" {
		t.Errorf("unexpected code %q", message.Code)
	}

	if message.Text != `relation "missing" does not exist` {
		t.Errorf("unexpected text %q", message.Text)
	}
}

// TestParseMessageMissingFields asserts that fields the server did not send
// stay empty instead of the parser walking past the payload.
func TestParseMessageMissingFields(t *testing.T) {
	payload := []byte("SNOTICE\x00\x00")
	message := parseMessage(payload)

	if message.Severity != "NOTICE" {
		t.Errorf("unexpected severity %q", message.Severity)
	}

	if message.Code != "" || message.Text != "" {
		t.Errorf("unexpected fields %q %q, expected both empty", message.Code, message.Text)
	}
}

func TestParseMessageTruncated(t *testing.T) {
	// a payload cut mid-field must not panic or loop
	payload := []byte("SERR")
	message := parseMessage(payload)

	if message.Severity != "ERR" {
		t.Errorf("unexpected severity %q", message.Severity)
	}
}

func TestParseMessageEmpty(t *testing.T) {
	message := parseMessage(nil)
	if message.Severity != "" || message.Code != "" || message.Text != "" {
		t.Errorf("unexpected message %+v, expected empty", message)
	}
}

func TestMessageString(t *testing.T) {
	message := Message{Severity: "ERROR", Code: "28P01", Text: "password authentication failed"}
	if message.String() != "ERROR 28P01: password authentication failed" {
		t.Errorf("unexpected string %q", message.String())
	}

	plain := local("connection is not established")
	if plain.String() != "connection is not established" {
		t.Errorf("unexpected string %q", plain.String())
	}
}
