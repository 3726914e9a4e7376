package webtunnel

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cvsouth/webtor-go/ts"
)

// Stream is a duplex byte stream carried over WebSocket binary frames. Frame
// boundaries are never exposed: reads may return part of a frame and
// continue into the next one, exactly like a TCP stream. Stream implements
// net.Conn so upper layers stay transport-agnostic.
//
// A Stream is owned by exactly one logical circuit. The underlying
// connection supports one concurrent reader and one concurrent writer;
// writes are serialized internally, reads must come from a single goroutine.
type Stream struct {
	conn   *websocket.Conn
	reader io.Reader // remainder of the current frame, nil between frames
	wmu    sync.Mutex
	closed atomic.Bool

	activity ts.Timestamp
}

func newStream(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// Read reads up to len(p) bytes, crossing frame boundaries as needed.
// A normal WebSocket close surfaces as io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, translateCloseError(err)
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if n > 0 {
			s.activity.Update()
		}
		if err == io.EOF {
			// Frame exhausted; next Read continues with the next frame.
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary frame.
func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed.Load() {
		return 0, net.ErrClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("webtunnel write: %w", err)
	}
	s.activity.Update()
	return len(p), nil
}

// Close performs an orderly shutdown: a close frame is offered to the peer,
// then the underlying connection is torn down. Subsequent reads and writes
// fail instead of hanging. Close is idempotent.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.wmu.Lock()
	// Best effort; the peer may already be gone.
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second))
	s.wmu.Unlock()
	return s.conn.Close()
}

// TimeSinceActivity returns how long ago data last moved on the stream in
// either direction. ok is false if no data has moved yet.
func (s *Stream) TimeSinceActivity() (time.Duration, bool) {
	return s.activity.TimeSince()
}

// LocalAddr returns the local network address.
func (s *Stream) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the bridge's network address.
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// SetDeadline sets both the read and write deadlines.
func (s *Stream) SetDeadline(t time.Time) error {
	if err := s.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return s.conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying connection.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// translateCloseError maps an orderly peer close onto io.EOF so callers see
// plain byte-stream semantics.
func translateCloseError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}
