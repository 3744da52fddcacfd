package pgfront

// Message field tags as they appear inside ErrorResponse and NoticeResponse
// payloads.
// http://www.postgresql.org/docs/current/static/protocol-error-fields.html
const (
	fieldSeverity byte = 'S'
	fieldSQLState byte = 'C'
	fieldMessage  byte = 'M'
)

// Message carries a server-reported error or notice. Severity holds the
// importance reported by the server (ERROR, FATAL, WARNING, NOTICE, ...),
// Code the five character SQLSTATE, and Text the human readable message.
// Locally raised conditions populate Text only.
type Message struct {
	Severity string
	Code     string
	Text     string
}

func (m Message) String() string {
	if m.Severity == "" && m.Code == "" {
		return m.Text
	}

	return m.Severity + " " + m.Code + ": " + m.Text
}

// parseMessage reads the tagged fields of an ErrorResponse or NoticeResponse
// payload. Fields are consumed strictly while inside the payload, stopping
// at the terminating NUL tag; fields the server did not send stay empty.
func parseMessage(payload []byte) Message {
	var message Message

	pos := 0
	for pos < len(payload) {
		tag := payload[pos]
		pos++

		if tag == 0 {
			break
		}

		end := pos
		for end < len(payload) && payload[end] != 0 {
			end++
		}

		value := string(payload[pos:end])
		pos = end + 1

		switch tag {
		case fieldSeverity:
			message.Severity = value
		case fieldSQLState:
			message.Code = value
		case fieldMessage:
			message.Text = value
		}
	}

	return message
}

// local constructs a Message for a condition raised by the library itself.
func local(text string) Message {
	return Message{Text: text}
}
