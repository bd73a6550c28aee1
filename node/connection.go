package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uiuxdeveloper-io/ledgerlight/core"
)

const (
	// OpenTimeout bounds how long Open waits for the socket to report ready.
	OpenTimeout = 5 * time.Second
	// KeepaliveInterval is the period of the Network.getSelf keepalive once
	// the socket is open.
	KeepaliveInterval = 10 * time.Second
	// SubmitTimeout bounds how long an atom submission call may take before
	// the connection treats it as failed and tears the socket down.
	SubmitTimeout = 5 * time.Second
	// IdleGrace is how long the active-work refcount may sit at or below
	// zero before Close is called automatically.
	IdleGrace = 5 * time.Second
)

// ErrSocketClosed is the terminal error every pending submission stream
// receives when the socket closes, whether by explicit Close, a transport
// failure, or the idle-close timer. Pending subscription streams carry no
// error value: their channels are simply closed. It is also returned by
// calls issued on a closed connection.
var ErrSocketClosed = fmt.Errorf("node: socket closed")

type subscription struct {
	id      int
	address string
	stream  *updateStream
}

type submissionHandle struct {
	id      int
	stream  *submissionStream
	state   SubmissionState
	settled bool
}

// Connection wraps one long-lived bidirectional RPC socket to a single
// remote ledger node, multiplexing atom subscriptions (by address) and atom
// submission lifecycles (by subscriberId) over it.
type Connection struct {
	url    string
	dialer Dialer
	log    *logrus.Logger

	mu      sync.Mutex
	conn    WireConn
	closed  bool
	onClose []func()

	subscriberSeq int
	subsByID      map[int]*subscription
	subsByAddr    map[string]int
	submissions   map[int]*submissionHandle

	refcount  int
	idleTimer *time.Timer

	keepaliveStop chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan rpcMessage
	reqSeq    uint64
}

// NewConnection builds a connection to url. Dial it with Open before use.
func NewConnection(url string, dialer Dialer, log *logrus.Logger) *Connection {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if dialer == nil {
		dialer = GorillaDialer{HandshakeTimeout: OpenTimeout}
	}
	return &Connection{
		url:         url,
		dialer:      dialer,
		log:         log,
		subsByID:    make(map[int]*subscription),
		subsByAddr:  make(map[string]int),
		submissions: make(map[int]*submissionHandle),
		pending:     make(map[string]chan rpcMessage),
	}
}

// OnClose registers a callback invoked exactly once when the connection's
// closed event fires, whichever path triggers it.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		go fn()
		return
	}
	c.onClose = append(c.onClose, fn)
}

// Open dials the socket, installs the server-push handlers and keepalive,
// and resolves once the socket is ready. It fails after OpenTimeout, in
// which case the (possibly half-open) socket is closed and a closed event
// is emitted.
func (c *Connection) Open(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, OpenTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, c.url)
	if err != nil {
		c.log.WithError(err).WithField("url", c.url).Warn("node connection open failed")
		c.emitClosed()
		return fmt.Errorf("node: open %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	c.startKeepalive()
	c.adjustRefcount(0)

	c.log.WithField("url", c.url).Info("node connection open")
	return nil
}

func (c *Connection) startKeepalive() {
	c.keepaliveStop = make(chan struct{})
	ticker := time.NewTicker(KeepaliveInterval)
	stop := c.keepaliveStop
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), OpenTimeout)
				_, _ = c.call(ctx, "Network.getSelf", struct{}{}, OpenTimeout)
				cancel()
			case <-stop:
				return
			}
		}
	}()
}

// Subscribe allocates a fresh subscriberId, installs a push stream for
// address, and asks the remote node to start delivering atom updates for
// it. first marks the very first bootstrap subscription of a session: by
// design it does not increment the active-work refcount, so the baseline
// established by that bootstrap subscription never by itself keeps the
// connection alive once every other subscription and submission has
// settled. This is a documented quirk, not an oversight: unsubscribing the
// first subscription still decrements unconditionally, same as any other.
func (c *Connection) Subscribe(ctx context.Context, address core.Address, first bool) (<-chan core.AtomUpdate, error) {
	addrStr := address.String()

	c.mu.Lock()
	if _, exists := c.subsByAddr[addrStr]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("node: already subscribed to %s", addrStr)
	}
	c.subscriberSeq++
	id := c.subscriberSeq
	sub := &subscription{id: id, address: addrStr, stream: newUpdateStream()}
	c.subsByID[id] = sub
	c.subsByAddr[addrStr] = id
	c.mu.Unlock()

	params, _ := json.Marshal(subscribeParams{SubscriberID: id, Query: atomQuery{DestinationAddress: addrStr}})
	if _, err := c.call(ctx, "Atoms.subscribe", json.RawMessage(params), 0); err != nil {
		c.mu.Lock()
		delete(c.subsByID, id)
		delete(c.subsByAddr, addrStr)
		c.mu.Unlock()
		sub.stream.finish()
		return nil, fmt.Errorf("node: subscribe %s: %w", addrStr, err)
	}

	if !first {
		c.adjustRefcount(1)
	}
	return sub.stream.out, nil
}

// Unsubscribe cancels the subscription bound to address, completes its
// stream, and decrements the refcount regardless of whether the remote
// cancel call succeeds.
func (c *Connection) Unsubscribe(ctx context.Context, address core.Address) error {
	return c.unsubscribeAddrStr(ctx, address.String())
}

func (c *Connection) unsubscribeAddrStr(ctx context.Context, addrStr string) error {
	c.mu.Lock()
	id, ok := c.subsByAddr[addrStr]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("node: not subscribed to %s", addrStr)
	}
	sub := c.subsByID[id]
	delete(c.subsByAddr, addrStr)
	delete(c.subsByID, id)
	c.mu.Unlock()

	params, _ := json.Marshal(cancelParams{SubscriberID: id})
	_, callErr := c.call(ctx, "Atoms.cancel", json.RawMessage(params), 0)

	sub.stream.finish()
	c.adjustRefcount(-1)
	return callErr
}

// UnsubscribeAll tears down every indexed subscription and forces the
// refcount to zero.
func (c *Connection) UnsubscribeAll(ctx context.Context) {
	c.mu.Lock()
	addrs := make([]string, 0, len(c.subsByAddr))
	for addr := range c.subsByAddr {
		addrs = append(addrs, addr)
	}
	c.mu.Unlock()

	for _, addr := range addrs {
		_ = c.unsubscribeAddrStr(ctx, addr)
	}

	c.mu.Lock()
	c.refcount = 0
	c.mu.Unlock()
}

// Submission is the caller-facing handle for one atom-submission lifecycle.
type Submission struct {
	Events <-chan SubmissionEvent
}

// SubmitAtom issues the atom to the remote node and returns a handle whose
// Events stream observes CREATED immediately, then SUBMITTED once the call
// itself succeeds, then whatever non-terminal/terminal transitions the
// remote node pushes back.
func (c *Connection) SubmitAtom(ctx context.Context, atom core.Atom) (*Submission, error) {
	atomBytes, err := core.SerializeAtom(atom)
	if err != nil {
		return nil, fmt.Errorf("node: serialize atom: %w", err)
	}

	c.mu.Lock()
	c.subscriberSeq++
	id := c.subscriberSeq
	handle := &submissionHandle{id: id, stream: newSubmissionStream(), state: Created}
	c.submissions[id] = handle
	c.mu.Unlock()

	handle.stream.push(SubmissionEvent{State: Created})

	params, _ := json.Marshal(submitAtomParams{SubscriberID: id, Atom: atomBytes})
	_, callErr := c.call(ctx, "Universe.submitAtomAndSubscribe", json.RawMessage(params), SubmitTimeout)
	c.adjustRefcount(1)

	if callErr != nil {
		c.failSubmission(id, callErr)
		c.Close()
		return nil, fmt.Errorf("node: submit atom: %w", callErr)
	}

	handle.state = Submitted
	handle.stream.push(SubmissionEvent{State: Submitted})

	return &Submission{Events: handle.stream.out}, nil
}

func (c *Connection) failSubmission(id int, err error) {
	c.mu.Lock()
	handle, ok := c.submissions[id]
	if ok {
		delete(c.submissions, id)
	}
	settle := ok && !handle.settled
	if settle {
		handle.settled = true
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	handle.stream.push(SubmissionEvent{Err: err})
	handle.stream.finish()
	if settle {
		c.adjustRefcount(-1)
	}
}

// Close closes the socket immediately: every pending submission stream is
// errored with ErrSocketClosed, every pending subscription stream is closed
// without an error value, the keepalive is stopped, and the closed event
// fires.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	subs := c.subsByID
	submissions := c.submissions
	c.subsByID = make(map[int]*subscription)
	c.subsByAddr = make(map[string]int)
	c.submissions = make(map[int]*submissionHandle)
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	stop := c.keepaliveStop
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		_ = conn.Close()
	}

	for _, sub := range subs {
		sub.stream.finish()
	}
	for _, handle := range submissions {
		handle.stream.push(SubmissionEvent{Err: ErrSocketClosed})
		handle.stream.finish()
	}

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.log.WithField("url", c.url).Info("node connection closed")
	c.emitClosed()
}

func (c *Connection) emitClosed() {
	c.mu.Lock()
	callbacks := c.onClose
	c.onClose = nil
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// adjustRefcount mutates the active-work count and arms or cancels the
// idle-close grace timer: a drop to zero (or below, per the first-
// subscription quirk) arms a 5-second timer; any return to a positive
// count cancels it.
func (c *Connection) adjustRefcount(delta int) {
	c.mu.Lock()
	c.refcount += delta
	r := c.refcount
	if r > 0 {
		if c.idleTimer != nil {
			c.idleTimer.Stop()
			c.idleTimer = nil
		}
		c.mu.Unlock()
		return
	}
	if c.idleTimer == nil {
		c.idleTimer = time.AfterFunc(IdleGrace, c.onIdleGraceExpired)
	}
	c.mu.Unlock()
}

func (c *Connection) onIdleGraceExpired() {
	c.mu.Lock()
	r := c.refcount
	closed := c.closed
	c.mu.Unlock()
	if closed || r > 0 {
		return
	}
	c.Close()
}

// readLoop drains server pushes and responses to our own calls until the
// socket errors, at which point the connection tears itself down.
func (c *Connection) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.log.WithError(err).Warn("node connection read failed")
			c.Close()
			return
		}

		if msg.ID != "" {
			c.deliverResponse(msg)
			continue
		}
		switch msg.Method {
		case "Atoms.subscribeUpdate":
			c.handleSubscribeUpdate(msg.Params)
		case "AtomSubmissionState.onNext":
			c.handleSubmissionStateOnNext(msg.Params)
		default:
			c.log.WithField("method", msg.Method).Debug("node connection ignored unknown notification")
		}
	}
}

func (c *Connection) deliverResponse(msg rpcMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- msg
		close(ch)
	}
}

// wireAtomEnvelope is how one atom arrives inside an Atoms.subscribeUpdate
// notification: the node's own transported hid alongside the atom content,
// so the connection can verify the two agree.
type wireAtomEnvelope struct {
	HID  string          `json:"hid"`
	Atom json.RawMessage `json:"atom"`
}

func (c *Connection) handleSubscribeUpdate(raw json.RawMessage) {
	var params subscribeUpdateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.log.WithError(err).Warn("node connection: malformed subscribeUpdate")
		return
	}

	c.mu.Lock()
	sub, ok := c.subsByID[params.SubscriberID]
	c.mu.Unlock()
	if !ok {
		return
	}

	for _, rawAtom := range params.Atoms {
		var env wireAtomEnvelope
		if err := json.Unmarshal(rawAtom, &env); err != nil {
			c.log.WithError(err).Warn("node connection: malformed atom in subscribeUpdate")
			continue
		}
		atom, err := core.DeserializeAtom(env.Atom)
		if err != nil {
			c.log.WithError(err).Warn("node connection: undeserializable atom in subscribeUpdate")
			continue
		}
		if env.HID != "" && env.HID != atom.HID.String() {
			c.log.WithFields(logrus.Fields{
				"transported": env.HID,
				"recomputed":  atom.HID.String(),
			}).WithError(core.ErrAtomHashMismatch).Warn("node connection: atom hash mismatch")
		}
		sub.stream.push(core.AtomUpdate{Action: core.Store, Atom: atom, Processed: atom.Processed})
	}
}

func (c *Connection) handleSubmissionStateOnNext(raw json.RawMessage) {
	var params submissionStateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.log.WithError(err).Warn("node connection: malformed submission state")
		return
	}
	state, ok := parseSubmissionState(params.Value)
	if !ok {
		c.log.WithField("value", params.Value).Warn("node connection: unknown submission state")
		return
	}

	c.mu.Lock()
	handle, ok := c.submissions[params.SubscriberID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if !state.Terminal() {
		handle.state = state
		handle.stream.push(SubmissionEvent{State: state})
		return
	}

	c.mu.Lock()
	delete(c.submissions, params.SubscriberID)
	settle := !handle.settled
	handle.settled = true
	c.mu.Unlock()

	if state.Failed() {
		handle.stream.push(SubmissionEvent{Err: fmt.Errorf("%s: %s", state, params.Message)})
	} else {
		handle.stream.push(SubmissionEvent{State: state})
	}
	handle.stream.finish()
	if settle {
		c.adjustRefcount(-1)
	}
}

// call issues an RPC request and waits for its matching response, a
// timeout (if non-zero), or the context ending. A zero timeout defers
// entirely to ctx.
func (c *Connection) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed || conn == nil {
		return nil, ErrSocketClosed
	}

	id := fmt.Sprintf("%d", atomic.AddUint64(&c.reqSeq, 1))
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("node: marshal params for %s: %w", method, err)
	}

	respCh := make(chan rpcMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	if err := conn.WriteJSON(rpcRequest{ID: id, Method: method, Params: paramBytes}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("node: write %s: %w", method, err)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case msg, ok := <-respCh:
		if !ok {
			return nil, ErrSocketClosed
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-callCtx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("node: %s timed out: %w", method, callCtx.Err())
	}
}
