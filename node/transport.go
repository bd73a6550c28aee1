package node

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// WireConn is the minimal duplex JSON socket a Connection drives. It is an
// interface so tests can substitute an in-memory fake for the real
// gorilla/websocket dial.
type WireConn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Dialer opens a WireConn to a remote node. GorillaDialer is the production
// implementation; tests supply their own.
type Dialer interface {
	Dial(ctx context.Context, url string) (WireConn, error)
}

// GorillaDialer dials real websockets via gorilla/websocket, the transport
// library the rest of this codebase's lineage already depends on for its
// own RPC bridges.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection to url.
func (d GorillaDialer) Dial(ctx context.Context, url string) (WireConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) WriteJSON(v any) error { return c.conn.WriteJSON(v) }
func (c *gorillaConn) ReadJSON(v any) error  { return c.conn.ReadJSON(v) }
func (c *gorillaConn) Close() error          { return c.conn.Close() }
