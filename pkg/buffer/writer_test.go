package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"

	"github.com/pgfront/pgfront/pkg/types"
)

func TestWriteMsg(t *testing.T) {
	out := &bytes.Buffer{}
	writer := NewWriter(slogt.New(t), out)

	writer.Start(types.ClientSync)
	err := writer.End()
	if err != nil {
		t.Error(err)
	}

	expected := []byte{byte(types.ClientSync), 0x00, 0x00, 0x00, 0x04}
	if !bytes.Equal(out.Bytes(), expected) {
		t.Errorf("unexpected bytes %v, expected %v", out.Bytes(), expected)
	}

	if len(writer.Bytes()) != 0 {
		t.Errorf("unexpected bytes %+v, expected the writer to be empty", writer.Bytes())
	}
}

// TestWriteMsgLengthPatch asserts that the length prefix is patched in
// place once the payload size is known.
func TestWriteMsgLengthPatch(t *testing.T) {
	out := &bytes.Buffer{}
	writer := NewWriter(slogt.New(t), out)

	writer.Start(types.ClientPassword)
	writer.AddString("md5secret")
	writer.AddNullTerminate()
	if err := writer.End(); err != nil {
		t.Error(err)
	}

	raw := out.Bytes()
	if raw[0] != byte(types.ClientPassword) {
		t.Errorf("unexpected tag %c", raw[0])
	}

	// length covers itself and the payload, not the tag
	expected := []byte{0x00, 0x00, 0x00, 0x0E}
	if !bytes.Equal(raw[1:5], expected) {
		t.Errorf("unexpected length %v, expected %v", raw[1:5], expected)
	}

	if len(raw) != 15 {
		t.Errorf("unexpected frame size %d, expected 15", len(raw))
	}
}

// TestWriteStartup asserts the untyped startup frame: no tag and a
// self-inclusive length prefix.
func TestWriteStartup(t *testing.T) {
	out := &bytes.Buffer{}
	writer := NewWriter(slogt.New(t), out)

	writer.StartStartup()
	writer.AddInt32(int32(types.Version30))
	writer.AddString("user")
	writer.AddNullTerminate()
	writer.AddString("postgres")
	writer.AddNullTerminate()
	writer.AddNullTerminate()
	if err := writer.End(); err != nil {
		t.Error(err)
	}

	raw := out.Bytes()
	if len(raw) != 23 {
		t.Fatalf("unexpected frame size %d, expected 23", len(raw))
	}

	if !bytes.Equal(raw[0:4], []byte{0x00, 0x00, 0x00, 0x17}) {
		t.Errorf("unexpected length prefix %v", raw[0:4])
	}

	if !bytes.Equal(raw[4:8], []byte{0x00, 0x03, 0x00, 0x00}) {
		t.Errorf("unexpected protocol version %v", raw[4:8])
	}
}

func TestWriteMsgErr(t *testing.T) {
	expected := errors.New("unexpected error")

	out := &bytes.Buffer{}
	writer := NewWriter(slogt.New(t), out)

	writer.Start(types.ClientParse)
	writer.err = expected

	writer.AddString("SELECT 1")
	writer.AddNullTerminate()
	err := writer.End()
	if err != expected {
		t.Errorf("unexpected error %s, expected %s", err, expected)
	}

	if out.Len() != 0 {
		t.Errorf("unexpected bytes %+v, expected no frame to be written", out.Bytes())
	}

	if writer.Error() != nil {
		t.Errorf("unexpected error %s, error should be empty after end", writer.Error())
	}
}
