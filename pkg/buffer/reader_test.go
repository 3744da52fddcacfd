package buffer

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/neilotoole/slogt"

	"github.com/pgfront/pgfront/pkg/types"
)

type frame struct {
	t       types.ServerMessage
	payload []byte
}

func stream(t *testing.T, frames []frame) []byte {
	t.Helper()

	out := &bytes.Buffer{}
	writer := NewWriter(slogt.New(t), out)

	for _, f := range frames {
		// The writer stamps client tags; overwrite with the server tag to
		// produce an inbound stream.
		writer.Start(types.ClientSync)
		writer.AddBytes(f.payload)

		raw := writer.Bytes()
		raw[0] = byte(f.t)
		if err := writer.End(); err != nil {
			t.Fatal(err)
		}
	}

	return out.Bytes()
}

// TestReaderSegmentation asserts that the frames recovered from a stream do
// not depend on how the stream is segmented: a reader fed one byte at a
// time observes exactly the frames a whole-buffer reader observes.
func TestReaderSegmentation(t *testing.T) {
	frames := []frame{
		{types.ServerParseComplete, nil},
		{types.ServerDataRow, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0xCA, 0xFE}},
		{types.ServerCommandComplete, append([]byte("SELECT 1"), 0x00)},
		{types.ServerReady, []byte{'I'}},
	}

	raw := stream(t, frames)

	read := func(t *testing.T, reader *Reader) []frame {
		var out []frame
		for range frames {
			typed, _, err := reader.ReadTypedMsg()
			if err != nil {
				t.Fatal(err)
			}

			payload := append([]byte(nil), reader.Remaining()...)
			out = append(out, frame{typed, payload})
		}
		return out
	}

	whole := read(t, NewReader(slogt.New(t), bytes.NewReader(raw), DefaultBufferSize))
	segmented := read(t, NewReader(slogt.New(t), iotest.OneByteReader(bytes.NewReader(raw)), DefaultBufferSize))

	if len(whole) != len(segmented) {
		t.Fatalf("unexpected frame count %d, expected %d", len(segmented), len(whole))
	}

	for i := range whole {
		if whole[i].t != segmented[i].t {
			t.Errorf("frame %d: unexpected type %s, expected %s", i, segmented[i].t, whole[i].t)
		}

		if !bytes.Equal(whole[i].payload, segmented[i].payload) {
			t.Errorf("frame %d: unexpected payload %v, expected %v", i, segmented[i].payload, whole[i].payload)
		}
	}
}

func TestReaderUndersizedFrame(t *testing.T) {
	// A frame whose length field claims fewer than the four bytes covering
	// itself cannot be valid.
	raw := []byte{byte(types.ServerReady), 0x00, 0x00, 0x00, 0x03}

	reader := NewReader(slogt.New(t), bytes.NewReader(raw), DefaultBufferSize)
	_, _, err := reader.ReadTypedMsg()
	if !errors.Is(err, ErrMessageSizeExceeded) {
		t.Errorf("unexpected error %v, expected a message size error", err)
	}
}

func TestReaderOversizedFrame(t *testing.T) {
	raw := []byte{byte(types.ServerDataRow), 0x7F, 0xFF, 0xFF, 0xFF}

	reader := NewReader(slogt.New(t), bytes.NewReader(raw), 1024)
	_, _, err := reader.ReadTypedMsg()

	exceeded, has := UnwrapMessageSizeExceeded(err)
	if !has {
		t.Fatalf("unexpected error %v, expected a message size error", err)
	}

	if exceeded.Max != 1024 {
		t.Errorf("unexpected max %d, expected 1024", exceeded.Max)
	}
}

func TestReaderGetString(t *testing.T) {
	raw := stream(t, []frame{{types.ServerParameterStatus, []byte("client_encoding\x00UTF8\x00")}})

	reader := NewReader(slogt.New(t), bytes.NewReader(raw), DefaultBufferSize)
	if _, _, err := reader.ReadTypedMsg(); err != nil {
		t.Fatal(err)
	}

	name, err := reader.GetString()
	if err != nil {
		t.Fatal(err)
	}

	if name != "client_encoding" {
		t.Errorf("unexpected name %s", name)
	}

	value, err := reader.GetString()
	if err != nil {
		t.Fatal(err)
	}

	if value != "UTF8" {
		t.Errorf("unexpected value %s", value)
	}

	_, err = reader.GetString()
	if !errors.Is(err, ErrMissingNulTerminator) {
		t.Errorf("unexpected error %v, expected missing NUL terminator", err)
	}
}

func TestReaderInsufficientData(t *testing.T) {
	raw := stream(t, []frame{{types.ServerReady, []byte{'I'}}})

	reader := NewReader(slogt.New(t), bytes.NewReader(raw), DefaultBufferSize)
	if _, _, err := reader.ReadTypedMsg(); err != nil {
		t.Fatal(err)
	}

	if _, err := reader.GetUint32(); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("unexpected error %v, expected insufficient data", err)
	}
}
