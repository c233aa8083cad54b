package link

const (
	// AutoResponseOffset is the zero-based position rewritten in echoed frames.
	AutoResponseOffset = 27
	// AutoResponseValue replaces the byte at AutoResponseOffset.
	AutoResponseValue byte = '2'
	// AutoResponseMinLength is the shortest inbound frame that gets a response.
	AutoResponseMinLength = AutoResponseOffset + 1
)

// AutoResponse returns a copy of inbound with the response-code position set
// to AutoResponseValue. ok is false when inbound is too short to carry it.
func AutoResponse(inbound []byte) (out []byte, ok bool) {
	if len(inbound) < AutoResponseMinLength {
		return nil, false
	}
	out = make([]byte, len(inbound))
	copy(out, inbound)
	out[AutoResponseOffset] = AutoResponseValue
	return out, true
}
