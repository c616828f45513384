package models

// TimestampMethod selects which timestamp of a message is plotted on the x axis.
type TimestampMethod string

const (
	TimestampReceiveTime TimestampMethod = "receiveTime"
	TimestampHeaderStamp TimestampMethod = "headerStamp"
)

// Message is one recorded message on a topic.
// Payload holds the decoded message body (nested maps, slices and scalars).
type Message struct {
	Topic       string                 `json:"topic" msgpack:"topic"`
	ReceiveTime Time                   `json:"receiveTime" msgpack:"receiveTime"`
	Payload     map[string]interface{} `json:"message" msgpack:"message"`
}

// TimestampFor resolves the timestamp of msg for the given method.
// It returns false when the message does not carry the requested timestamp,
// e.g. a header stamp on a message without a header.
func TimestampFor(msg Message, method TimestampMethod) (Time, bool) {
	switch method {
	case TimestampHeaderStamp:
		header, ok := msg.Payload["header"].(map[string]interface{})
		if !ok {
			return Time{}, false
		}
		return TimeFromValue(header["stamp"])
	case TimestampReceiveTime, "":
		return msg.ReceiveTime, true
	}
	return Time{}, false
}
