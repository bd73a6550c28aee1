// Package identityrpc is a thin client for the remote identity collaborator:
// an external process that holds private key material and answers
// registration, signing, and decryption requests over a websocket RPC
// channel. The core ledger projection is indifferent to this channel; it
// never decrypts a payload or signs an atom itself.
package identityrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/uiuxdeveloper-io/ledgerlight/node"
)

// DefaultPort is the remote identity collaborator's default listen port.
const DefaultPort = 54345

type envelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Client drives request/response pairs over a WireConn, routing each
// response to its caller by matching id so register/sign_atom/
// decrypt_ecies_payload/get_public_key calls may be outstanding
// concurrently. It reuses node.WireConn/node.Dialer rather than its own
// transport abstraction, since both collaborators speak the same
// request/response-by-id shape over a websocket.
type Client struct {
	conn node.WireConn
	log  *logrus.Logger

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	closeOnce sync.Once
}

// Dial opens a connection to the remote identity collaborator at url,
// which is typically ws://host:54345, and starts its response read loop.
func Dial(ctx context.Context, dialer node.Dialer, url string, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("identityrpc: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		pending: make(map[string]chan envelope),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the underlying socket and errors every outstanding call.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return err
}

func (c *Client) readLoop() {
	for {
		var msg envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.log.WithError(err).Debug("identityrpc: read loop ending")
			_ = c.Close()
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendingMu.Unlock()
		if !ok {
			c.log.WithField("id", msg.ID).Warn("identityrpc: response with no matching call")
			continue
		}
		ch <- msg
	}
}

// RegisterResult is the response to a register call.
type RegisterResult struct {
	PublicKey string `json:"publicKey"`
}

// Register announces this client's identity to the collaborator and
// returns the public key it will sign with.
func (c *Client) Register(ctx context.Context, name string) (RegisterResult, error) {
	var out RegisterResult
	if err := c.call(ctx, "register", map[string]string{"name": name}, &out); err != nil {
		return RegisterResult{}, err
	}
	return out, nil
}

// SignAtomResult carries the signature produced over an atom's hid.
type SignAtomResult struct {
	Signature string `json:"signature"`
}

// SignAtom asks the collaborator to sign the given atom hid.
func (c *Client) SignAtom(ctx context.Context, hid string) (SignAtomResult, error) {
	var out SignAtomResult
	if err := c.call(ctx, "sign_atom", map[string]string{"hid": hid}, &out); err != nil {
		return SignAtomResult{}, err
	}
	return out, nil
}

// DecryptECIESResult carries a decrypted payload, or a flag indicating the
// collaborator could not decrypt it (wrong recipient, unsupported curve).
type DecryptECIESResult struct {
	Plaintext []byte `json:"plaintext"`
	Decrypted bool   `json:"decrypted"`
}

// DecryptECIESPayload asks the collaborator to decrypt an ECIES-encrypted
// message payload addressed to this identity.
func (c *Client) DecryptECIESPayload(ctx context.Context, payload []byte) (DecryptECIESResult, error) {
	var out DecryptECIESResult
	params := map[string]string{"payload": string(payload)}
	if err := c.call(ctx, "decrypt_ecies_payload", params, &out); err != nil {
		return DecryptECIESResult{}, err
	}
	return out, nil
}

// GetPublicKeyResult carries the collaborator's current public key.
type GetPublicKeyResult struct {
	PublicKey string `json:"publicKey"`
}

// GetPublicKey fetches the collaborator's current public key without
// re-registering.
func (c *Client) GetPublicKey(ctx context.Context) (GetPublicKeyResult, error) {
	var out GetPublicKeyResult
	if err := c.call(ctx, "get_public_key", struct{}{}, &out); err != nil {
		return GetPublicKeyResult{}, err
	}
	return out, nil
}

// call issues one request and waits for the response carrying the same id,
// or ctx ending, whichever comes first. Calls may run concurrently: each
// gets its own response channel keyed by request id in c.pending.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := uuid.New().String()
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("identityrpc: marshal params for %s: %w", method, err)
	}

	respCh := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	if err := c.conn.WriteJSON(envelope{ID: id, Method: method, Params: paramBytes}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("identityrpc: write %s: %w", method, err)
	}

	select {
	case msg, ok := <-respCh:
		if !ok {
			return fmt.Errorf("identityrpc: %s: connection closed", method)
		}
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil || msg.Result == nil {
			return nil
		}
		return json.Unmarshal(msg.Result, out)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("identityrpc: %s: %w", method, ctx.Err())
	}
}
