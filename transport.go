package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/NeboLoop/chat-go-sdk/frame"
)

// Close codes used by the client.
const (
	CloseNormal           = int(ws.StatusNormalClosure)
	CloseGoingAway        = int(ws.StatusGoingAway)
	CloseAbnormal         = int(ws.StatusAbnormalClosure)
	CloseHeartbeatTimeout = 4000
)

// Conn is one duplex text-frame channel.
type Conn interface {
	// ReadMessage blocks for the next text message. When the peer closes the
	// channel it returns a *CloseError.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close sends a close frame with code and releases the channel.
	Close(code int, reason string) error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// CloseError reports how a channel was closed.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("closed with code %d", e.Code)
	}
	return fmt.Sprintf("closed with code %d: %s", e.Code, e.Reason)
}

// closeInfo extracts the close code from a read error. Anything that is not
// a close handshake counts as abnormal closure.
func closeInfo(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	if err == nil {
		return CloseNormal, ""
	}
	return CloseAbnormal, err.Error()
}

// --- gobwas implementation ---

// WSDialer dials WebSocket endpoints with gobwas/ws.
type WSDialer struct {
	Timeout      time.Duration // handshake timeout; 0 means 10s
	WriteTimeout time.Duration // per-frame write deadline; 0 means 10s
	Header       http.Header   // extra handshake headers
}

// Dial performs the WebSocket handshake.
func (d WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := ws.Dialer{Timeout: timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}

	conn, br, _, err := dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Frames the server sent along with the handshake response sit in br.
	// Copy them out and return br to the pool now, while nothing reads it.
	var src io.Reader = conn
	if br != nil {
		if n := br.Buffered(); n > 0 {
			pending := make([]byte, n)
			if _, err := io.ReadFull(br, pending); err != nil {
				ws.PutReader(br)
				conn.Close()
				return nil, fmt.Errorf("dial: read buffered frames: %w", err)
			}
			src = io.MultiReader(bytes.NewReader(pending), conn)
		}
		ws.PutReader(br)
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		reader: &wsutil.Reader{
			Source:    src,
			State:     ws.StateClientSide,
			CheckUTF8: true,
		},
	}, nil
}

type wsConn struct {
	conn         net.Conn
	reader       *wsutil.Reader
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ReadMessage returns the next text message. Control frames are handled
// inline: pings are answered and a close frame is echoed and reported as a
// *CloseError.
func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			payload, err := io.ReadAll(io.LimitReader(c.reader, hdr.Length))
			if err != nil {
				return nil, err
			}
			switch hdr.OpCode {
			case ws.OpPing:
				if err := c.write(ws.OpPong, payload); err != nil {
					return nil, err
				}
			case ws.OpClose:
				code, reason := ws.ParseCloseFrameData(payload)
				if code == 0 {
					code = ws.StatusNoStatusRcvd
				}
				c.closeWith(int(code), "")
				return nil, &CloseError{Code: int(code), Reason: reason}
			}
			continue
		}
		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := c.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(c.reader, frame.MaxFrameLen+1))
		if err != nil {
			return nil, err
		}
		if len(data) > frame.MaxFrameLen {
			return nil, frame.ErrFrameTooLarge
		}
		return data, nil
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.write(ws.OpText, data)
}

func (c *wsConn) write(op ws.OpCode, p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return wsutil.WriteClientMessage(c.conn, op, p)
}

func (c *wsConn) Close(code int, reason string) error {
	return c.closeWith(code, reason)
}

func (c *wsConn) closeWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		// Codes 1005 and 1006 must not appear on the wire.
		if code != int(ws.StatusNoStatusRcvd) && code != CloseAbnormal {
			_ = c.write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusCode(code), reason))
		}
		err = c.conn.Close()
	})
	return err
}
