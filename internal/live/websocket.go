package live

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Subprotocol is the WebSocket subprotocol negotiated for STOMP 1.2.
const Subprotocol = "v12.stomp"

const maxReadBytes = 1 << 20

// Conn carries STOMP frames. Receive is only called from one goroutine at a time.
type Conn interface {
	Send(ctx context.Context, f *Frame) error
	Receive(ctx context.Context) (*Frame, error)
	Close() error
}

// Dialer opens a [Conn] to the push endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketDialer dials the push endpoint over WebSocket.
type WebSocketDialer struct {
	URL        string
	HTTPClient *http.Client
	Header     http.Header
}

// NewWebSocketDialer creates a [WebSocketDialer] for url.
func NewWebSocketDialer(url string) *WebSocketDialer {
	return &WebSocketDialer{URL: url}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ws, resp, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   d.Header,
		Subprotocols: []string{Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	ws.SetReadLimit(maxReadBytes)
	return &wsConn{ws: ws}, nil
}

// wsConn sends one frame per text message and accepts any number of frames per inbound message.
type wsConn struct {
	ws      *websocket.Conn
	pending []*Frame
}

func (c *wsConn) Send(ctx context.Context, f *Frame) error {
	return c.ws.Write(ctx, websocket.MessageText, f.Encode())
}

func (c *wsConn) Receive(ctx context.Context) (*Frame, error) {
	for len(c.pending) == 0 {
		mt, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			return nil, fmt.Errorf("unsupported message type: %v", mt)
		}

		frames, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		c.pending = frames
	}

	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
