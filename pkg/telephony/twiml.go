package telephony

import (
	"bytes"
	"encoding/xml"
)

// TwiML response document. Only the verbs this adapter emits are modeled.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Reject  *twimlReject  `xml:"Reject,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlReject struct {
	Reason string `xml:"reason,attr,omitempty"`
}

type twimlConnect struct {
	Stream *twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

const sayVoice = "Polly.Matthew"

func renderTwiML(r *twimlResponse) string {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	_ = enc.Encode(r)
	_ = enc.Flush()
	return buf.String()
}

// rejectTwiML rejects a call outright (non-whitelisted caller).
func rejectTwiML() string {
	return renderTwiML(&twimlResponse{Reject: &twimlReject{Reason: "rejected"}})
}

// busyTwiML apologizes and hangs up (concurrent call cap reached).
func busyTwiML() string {
	return renderTwiML(&twimlResponse{
		Say:    &twimlSay{Voice: sayVoice, Text: "We're experiencing high call volume. Please try again later."},
		Hangup: &struct{}{},
	})
}

// streamTwiML greets the caller and connects a bidirectional media stream
// with the custom parameters the media WS needs to register the call.
func streamTwiML(greeting, streamURL string, params map[string]string) string {
	stream := &twimlStream{URL: streamURL}
	// Deterministic parameter order keeps responses diffable in logs.
	for _, name := range []string{"session_id", "call_id", "twilio_call_sid", "caller_phone_number", "caller_name", "direction"} {
		if v, ok := params[name]; ok && v != "" {
			stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: v})
		}
	}
	return renderTwiML(&twimlResponse{
		Say:     &twimlSay{Voice: sayVoice, Text: greeting},
		Connect: &twimlConnect{Stream: stream},
	})
}
