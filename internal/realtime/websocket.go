package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types exchanged with the realtime server. The client sends one
// subscribe frame per connection; the server answers with status frames
// and change frames.
const (
	FrameSubscribe = "subscribe"
	FrameStatus    = "status"
	FrameChange    = "change"
)

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Type   string       `json:"type"`
	Topic  string       `json:"topic,omitempty"`
	Filter string       `json:"filter,omitempty"`
	Status Status       `json:"status,omitempty"`
	Error  string       `json:"error,omitempty"`
	Event  *ChangeEvent `json:"event,omitempty"`
}

// WebsocketTransport opens one websocket connection per topic.
type WebsocketTransport struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

var _ Transport = (*WebsocketTransport)(nil)

// NewWebsocketTransport creates a transport dialing url.
func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{URL: url, HandshakeTimeout: 15 * time.Second}
}

// Open dials the server, sends the subscribe frame and starts the read loop.
func (t *WebsocketTransport) Open(ctx context.Context, topic Topic, sink Sink) (Channel, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	c := &wsChannel{conn: conn, sink: sink, topic: topic.Key, logger: logger, done: make(chan struct{})}
	if err := c.writeFrame(Frame{Type: FrameSubscribe, Topic: topic.Key, Filter: topic.Filter}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	go c.readLoop()
	return c, nil
}

type wsChannel struct {
	conn   *websocket.Conn
	sink   Sink
	topic  string
	logger *slog.Logger
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	closing bool
}

func (c *wsChannel) writeFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *wsChannel) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosing() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.sink.Status(StatusClosed, nil)
			} else {
				c.sink.Status(StatusError, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed realtime frame", "topic", c.topic, "error", err)
			continue
		}
		switch f.Type {
		case FrameStatus:
			var ferr error
			if f.Error != "" {
				ferr = errors.New(f.Error)
			}
			c.sink.Status(f.Status, ferr)
		case FrameChange:
			if f.Event != nil {
				c.sink.Event(*f.Event)
			}
		default:
			c.logger.Debug("unknown realtime frame", "topic", c.topic, "type", f.Type)
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}
