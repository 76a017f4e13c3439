package docsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	eventsBufferSize        = 16
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 8 * time.Second
	eventsMaxMessageSize    = 1 * 1024 * 1024
	eventsPath              = "/api/v1/events"
)

// RemoteChange is a server push telling the client a document changed on the
// backend. The client reacts by nudging a sync, not by applying the change
// directly.
type RemoteChange struct {
	DocumentID string `json:"documentId"`
	Version    int64  `json:"version"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// EventsAPI maintains the websocket subscription for remote-change pushes.
type EventsAPI struct {
	wsURL     string
	token     string
	changes   chan *RemoteChange
	cancel    context.CancelFunc
	mu        sync.Mutex
	connected bool
}

func newEventsAPI(baseURL string) *EventsAPI {
	wsURL := strings.Replace(baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	return &EventsAPI{
		wsURL:   wsURL + eventsPath,
		changes: make(chan *RemoteChange, eventsBufferSize),
	}
}

func (e *EventsAPI) SetToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = token
}

// Changes returns the stream of remote-change notifications.
func (e *EventsAPI) Changes() <-chan *RemoteChange {
	return e.changes
}

// Connect dials the events socket and keeps reading until ctx is cancelled,
// reconnecting with backoff on transport errors.
func (e *EventsAPI) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return nil
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.connected = true
	e.mu.Unlock()

	conn, err := e.dial(ctx)
	if err != nil {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		return fmt.Errorf("events connect: %w", err)
	}

	go e.readLoop(ctx, conn)
	return nil
}

func (e *EventsAPI) dial(ctx context.Context) (*websocket.Conn, error) {
	e.mu.Lock()
	token := e.token
	e.mu.Unlock()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + token},
		}
	}

	conn, _, err := websocket.Dial(ctx, e.wsURL, opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(eventsMaxMessageSize)
	return conn, nil
}

func (e *EventsAPI) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer slog.Debug("events socket reader shutdown")

	delay := eventsReconnectDelay
	for {
		change := &RemoteChange{}
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || isExpectedCloseError(err) {
				conn.Close(websocket.StatusNormalClosure, "shutdown")
				return
			}

			slog.Warn("events socket read", "error", err)
			conn.Close(websocket.StatusAbnormalClosure, "read error")

			// reconnect with capped backoff
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				if delay < eventsMaxReconnectDelay {
					delay *= 2
				}

				if conn, err = e.dial(ctx); err != nil {
					slog.Warn("events socket reconnect", "error", err)
					continue
				}
				slog.Info("events socket reconnected")
				break
			}
			continue
		}
		delay = eventsReconnectDelay

		if err := jsonUnmarshal(raw, change); err != nil {
			slog.Warn("events socket decode", "error", err)
			continue
		}

		select {
		case e.changes <- change:
		default:
			// a full buffer means a sync is already overdue; drop the
			// nudge rather than block the reader
			slog.Debug("events buffer full, dropping change", "documentId", change.DocumentID)
		}
	}
}

// Close stops the read loop and closes the notification channel.
func (e *EventsAPI) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return
	}
	e.connected = false
	if e.cancel != nil {
		e.cancel()
	}
}

func isExpectedCloseError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway
}
