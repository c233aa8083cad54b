package link

import (
	"net"

	"github.com/danmuck/linkctl/internal/protocol/session"
)

type eventKind uint8

const (
	eventUnknown eventKind = iota

	// transport
	eventAccepted
	eventData
	eventClosed
	eventError
	eventDialed
	eventListenerFailed
)

func (k eventKind) String() string {
	switch k {
	case eventAccepted:
		return "accepted"
	case eventData:
		return "data"
	case eventClosed:
		return "closed"
	case eventError:
		return "error"
	case eventDialed:
		return "dialed"
	case eventListenerFailed:
		return "listener_failed"
	default:
		return "unknown"
	}
}

// event is one transport callback. gen pins it to the session that produced
// it so callbacks from a stopped session are dropped.
type event struct {
	kind eventKind
	gen  uint64
	peer *peer
	conn net.Conn
	data []byte
	err  error
}

type opKind uint8

const (
	opConfigure opKind = iota + 1
	opStart
	opStop
	opSend
	opAutoRespond
)

// request is one caller operation. reply is buffered so the loop never blocks on it.
type request struct {
	op      opKind
	conn    session.ConnectionConfig
	payload []byte
	enabled bool
	reply   chan reply
}

type reply struct {
	send SendResult
	err  error
}
