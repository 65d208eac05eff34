package overlay

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	logging "github.com/ipfs/go-log/v2"

	"github.com/p2pmsg/overlay/internal/util"
)

var sinkLog = logging.Logger("overlay/events")

// EventSink is the unidirectional, lossy-tolerant outbound stream to the
// host. Emission never blocks and never propagates a failure back into
// the event loop — a disconnected host simply misses events.
type EventSink struct {
	out func(line string)

	// history is a bounded ring buffer of recently emitted lines, kept
	// for diagnostics (e.g. a host reconnecting after a drop can ask
	// what it might have missed). It has no bearing on delivery
	// semantics, which remain fire-and-forget.
	history *util.RingBuffer[string]
}

// NewEventSink wraps out, the function that actually delivers a line to
// the host (e.g. a StreamSink callback, a channel send, or an SSE
// writer). A panic in out is recovered and logged; the line stays in
// history either way.
func NewEventSink(out func(line string)) *EventSink {
	return &EventSink{out: out, history: util.NewRingBuffer[string](256)}
}

func (s *EventSink) emit(line string) {
	s.history.Push(line)
	if s.out == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sinkLog.Warnf("event sink delivery failed: %v", r)
		}
	}()
	s.out(line)
}

// Me emits the startup identity line. Must be called exactly once, and
// before any other emission.
func (s *EventSink) Me(id peer.ID) {
	s.emit(fmt.Sprintf("ME:%s", id))
}

// PeerJoined emits a PEER+ line.
func (s *EventSink) PeerJoined(id peer.ID) {
	s.emit(fmt.Sprintf("PEER+:%s", id))
}

// PeerLeft emits a PEER- line.
func (s *EventSink) PeerLeft(id peer.ID) {
	s.emit(fmt.Sprintf("PEER-:%s", id))
}

// Message emits an inbound chat line.
func (s *EventSink) Message(from peer.ID, text string) {
	s.emit(fmt.Sprintf("MSG:%s:%s", from, text))
}

// MessageSent emits a local publish acknowledgment.
func (s *EventSink) MessageSent(recipient, body string) {
	s.emit(fmt.Sprintf("MSG_SENT:%s:%s", recipient, body))
}

// History returns a snapshot of recently emitted lines, most useful for
// tests and diagnostics.
func (s *EventSink) History() []string {
	return s.history.Snapshot()
}

// Replay re-delivers every currently buffered line to out, without
// re-recording them into history. A host driving ReservedHistory uses
// this to catch up after a reconnect.
func (s *EventSink) Replay() {
	if s.out == nil {
		return
	}
	for _, line := range s.History() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					sinkLog.Warnf("event sink replay failed: %v", r)
				}
			}()
			s.out(line)
		}()
	}
}
