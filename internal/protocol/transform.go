package protocol

// Transform maps an inbound data message to the outbound reply.
//
// Text payloads are reversed by Unicode code point, so that
// Transform(Transform(m)) == m for any valid UTF-8 text. Binary payloads are
// echoed unchanged. Non-data messages are returned as-is.
//
// Transform has no side effects and is safe for concurrent use.
func Transform(msg Message) Message {
	switch msg.Kind {
	case KindText:
		return Message{Kind: KindText, Payload: []byte(Reverse(string(msg.Payload)))}
	case KindBinary:
		return NewBinary(msg.Payload)
	default:
		return msg
	}
}

// Reverse returns s with its code points in reverse order.
func Reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
