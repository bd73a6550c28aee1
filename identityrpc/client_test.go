package identityrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/uiuxdeveloper-io/ledgerlight/node"
)

type fakeConn struct {
	writes chan []byte
	reads  chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan []byte, 4), reads: make(chan []byte, 4)}
}

func (f *fakeConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.writes <- b
	return nil
}

func (f *fakeConn) ReadJSON(v any) error {
	b := <-f.reads
	return json.Unmarshal(b, v)
}

func (f *fakeConn) Close() error { return nil }

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (node.WireConn, error) {
	return d.conn, nil
}

func TestClientRegisterRoundTrip(t *testing.T) {
	conn := newFakeConn()
	c, err := Dial(context.Background(), &fakeDialer{conn: conn}, "ws://test:54345", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var result RegisterResult
	var callErr error
	go func() {
		result, callErr = c.Register(context.Background(), "alice")
		close(done)
	}()

	var req envelope
	select {
	case b := <-conn.writes:
		if err := json.Unmarshal(b, &req); err != nil {
			t.Fatalf("unmarshal written request: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for register request")
	}
	if req.Method != "register" {
		t.Fatalf("expected method register, got %s", req.Method)
	}

	resultBytes, _ := json.Marshal(RegisterResult{PublicKey: "pk-123"})
	respBytes, _ := json.Marshal(envelope{ID: req.ID, Result: resultBytes})
	conn.reads <- respBytes

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for register to return")
	}
	if callErr != nil {
		t.Fatalf("register: %v", callErr)
	}
	if result.PublicKey != "pk-123" {
		t.Fatalf("expected public key pk-123, got %q", result.PublicKey)
	}
}

func TestClientCallSurfacesRPCError(t *testing.T) {
	conn := newFakeConn()
	c, err := Dial(context.Background(), &fakeDialer{conn: conn}, "ws://test:54345", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.SignAtom(context.Background(), "deadbeef")
		close(done)
	}()

	var req envelope
	b := <-conn.writes
	_ = json.Unmarshal(b, &req)

	respBytes, _ := json.Marshal(envelope{ID: req.ID, Error: &rpcError{Code: 403, Message: "unregistered identity"}})
	conn.reads <- respBytes

	<-done
	if callErr == nil {
		t.Fatal("expected sign_atom to surface the rpc error")
	}
}

func TestClientCallRespectsContextCancellation(t *testing.T) {
	conn := newFakeConn()
	c, err := Dial(context.Background(), &fakeDialer{conn: conn}, "ws://test:54345", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.GetPublicKey(ctx)
		close(done)
	}()

	<-conn.writes // drain the outgoing request, never answer it
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to unblock the call")
	}
	if callErr == nil {
		t.Fatal("expected a cancelled context to surface as an error")
	}
}
