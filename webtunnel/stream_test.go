package webtunnel

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// startBridge runs an httptest server that upgrades to WebSocket and hands
// the connection to serve. Connect sees it exactly like a real bridge
// endpoint, just without TLS.
func startBridge(t *testing.T, serve func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func echo(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func dialTest(t *testing.T, srv *httptest.Server) *Stream {
	t.Helper()
	cfg := NewConfig(srv.URL, "")
	stream, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func TestStreamEcho(t *testing.T) {
	srv := startBridge(t, echo)
	stream := dialTest(t, srv)

	payload := []byte("VERSIONS cell goes here")
	if _, err := stream.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, len(payload))
	if _, err := io.ReadFull(stream, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("echoed %q, want %q", buf, payload)
	}
}

func TestStreamReadCrossesFrames(t *testing.T) {
	srv := startBridge(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("world"))
		// Hold the connection open until the client is done reading.
		_, _, _ = conn.ReadMessage()
	})
	stream := dialTest(t, srv)

	// A short buffer forces reads to stop inside and at frame boundaries;
	// the stream must carry on into the next frame like TCP would.
	var got []byte
	buf := make([]byte, 3)
	for len(got) < 10 {
		n, err := stream.Read(buf)
		if err != nil {
			t.Fatalf("Read after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "helloworld" {
		t.Fatalf("got %q, want %q", got, "helloworld")
	}
}

func TestStreamEOFOnPeerClose(t *testing.T) {
	srv := startBridge(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("bye"))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		// Wait for the client's close response before tearing down.
		_, _, _ = conn.ReadMessage()
	})
	stream := dialTest(t, srv)

	buf := make([]byte, 16)
	n, err := stream.Read(buf)
	if err != nil || string(buf[:n]) != "bye" {
		t.Fatalf("first read = %q, %v", buf[:n], err)
	}

	if _, err := stream.Read(buf); err != io.EOF {
		t.Fatalf("read after peer close = %v, want io.EOF", err)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	srv := startBridge(t, echo)
	stream := dialTest(t, srv)

	if err := stream.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := stream.Write([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Write after Close = %v, want net.ErrClosed", err)
	}
}

func TestStreamActivityTracking(t *testing.T) {
	srv := startBridge(t, echo)
	stream := dialTest(t, srv)

	if _, ok := stream.TimeSinceActivity(); ok {
		t.Fatal("activity reported before any data moved")
	}

	if _, err := stream.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	d, ok := stream.TimeSinceActivity()
	if !ok {
		t.Fatal("no activity reported after a write")
	}
	if d > 10*time.Second {
		t.Fatalf("implausible idle duration %v", d)
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(stream, buf); err != nil {
		t.Fatal(err)
	}
	if _, ok := stream.TimeSinceActivity(); !ok {
		t.Fatal("no activity reported after a read")
	}
}

func TestStreamImplementsNetConn(t *testing.T) {
	srv := startBridge(t, echo)
	stream := dialTest(t, srv)

	var conn net.Conn = stream
	if conn.LocalAddr() == nil || conn.RemoteAddr() == nil {
		t.Fatal("missing addresses")
	}
	if err := conn.SetDeadline(time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}
}

func TestConnectRejectsNonUpgradeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Connect(NewConfig(srv.URL, ""), nil)
	if err == nil {
		t.Fatal("expected handshake error against a plain HTTP endpoint")
	}
}
