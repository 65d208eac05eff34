package overlay

import "sync"

// ReservedBroadcast is the recipient token that suppresses the outbound
// MSG_SENT acknowledgment: the overlay has no unicast path, so a
// broadcast send has no single recipient to acknowledge against.
const ReservedBroadcast = "BROADCAST"

// ReservedRefresh is the recipient token that triggers a discovery
// sweep instead of a publish.
const ReservedRefresh = "REFRESH"

// ReservedHistory is the recipient token that requests a replay of
// recently emitted event-sink lines instead of a publish — useful for a
// host reconnecting after a drop to ask what it might have missed.
const ReservedHistory = "HISTORY"

// Command is a host-submitted instruction: a chat send (recipient,
// body), or one of the reserved refresh and history commands.
type Command struct {
	Recipient string
	Body      string
}

// CommandChannel is the process-wide, multi-producer/single-consumer
// unbounded queue of commands. Go channels are bounded, so the queue is
// backed by a growable slice guarded by a mutex and condition variable;
// the event loop drains it through Recv, which behaves like reading
// from an unbounded mpsc receiver. It is initialized exactly once; a
// Send after the channel has been closed is a silent no-op, matching
// the host ABI's "fire and forget, even before or after the node runs"
// contract.
type CommandChannel struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Command
	closed  bool
	forward chan Command
}

var (
	globalOnce sync.Once
	global     *CommandChannel
)

// GlobalCommandChannel returns the process-wide command channel,
// creating it on first call. Subsequent calls return the same instance;
// rebinding is forbidden by design (see DESIGN NOTES on the global
// command channel).
func GlobalCommandChannel() *CommandChannel {
	globalOnce.Do(func() {
		global = NewCommandChannel()
	})
	return global
}

// NewCommandChannel constructs a standalone channel, useful for tests
// that don't want to share the process-wide singleton.
func NewCommandChannel() *CommandChannel {
	c := &CommandChannel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send enqueues a command. It never blocks the caller and is a silent
// no-op once Close has been called.
func (c *CommandChannel) Send(recipient, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, Command{Recipient: recipient, Body: body})
	c.cond.Signal()
}

// Refresh enqueues the reserved REFRESH command.
func (c *CommandChannel) Refresh() {
	c.Send(ReservedRefresh, ReservedRefresh)
}

// Recv blocks until a command is available or the channel is closed.
// ok is false once the channel is closed and drained; only the event
// loop should call Recv.
func (c *CommandChannel) Recv() (cmd Command, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if len(c.queue) == 0 {
		return Command{}, false
	}
	cmd, c.queue = c.queue[0], c.queue[1:]
	return cmd, true
}

// Close marks the channel closed; subsequent Send calls are no-ops and
// any blocked Recv returns ok=false once the queue drains.
func (c *CommandChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// Chan starts (on first call) a goroutine that forwards Recv results
// onto a Go channel, and returns it. This lets the event loop select
// over command arrival alongside its timer and swarm-event sources
// without giving up the unbounded-queue semantics of Send/Recv. The
// returned channel is closed once the command channel is closed and
// drained.
func (c *CommandChannel) Chan() <-chan Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forward == nil {
		c.forward = make(chan Command)
		go func() {
			defer close(c.forward)
			for {
				cmd, ok := c.Recv()
				if !ok {
					return
				}
				c.forward <- cmd
			}
		}()
	}
	return c.forward
}

// SendMessage is the host-facing synchronous entry point: enqueue a
// chat send onto the process-wide command channel. Tolerates being
// called before any node has started.
func SendMessage(recipient, body string) {
	GlobalCommandChannel().Send(recipient, body)
}

// RefreshNode is the host-facing synchronous entry point: enqueue a
// discovery refresh onto the process-wide command channel.
func RefreshNode() {
	GlobalCommandChannel().Refresh()
}
