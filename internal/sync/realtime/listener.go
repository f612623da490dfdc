// Package realtime maintains a websocket subscription to the remote
// change feed and folds incoming row events into the local store
// through the engine's merge path.
package realtime

import (
	"context"
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/models"
	enginesync "github.com/hweilin/tillsync/internal/sync"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second

	// reconnect backoff bounds
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Applier is the merge boundary the listener feeds events through.
// *sync.Engine satisfies it.
type Applier interface {
	ApplyRemoteChange(collection string, typ enginesync.ChangeType, row models.Record) (models.Record, error)
}

// changeEvent is one row-level change frame from the feed.
type changeEvent struct {
	Type       string        `json:"type"`
	Collection string        `json:"collection"`
	Record     models.Record `json:"record"`
}

// subscribeFrame is sent once per connection to select collections.
type subscribeFrame struct {
	Action      string   `json:"action"`
	Collections []string `json:"collections"`
}

// Config holds the listener's wiring.
type Config struct {
	// URL is the websocket endpoint of the change feed.
	URL string

	// Collections to subscribe to.
	Collections []string

	// OnChange, when set, is invoked after a change has been merged
	// locally. The record is the merged result, nil for deletes.
	OnChange func(collection string, rec models.Record)
}

// Listener is a reconnecting websocket client for the remote change
// feed. Events are merged through the Applier; malformed frames are
// logged and skipped.
type Listener struct {
	cfg     Config
	applier Applier
	dialer  *websocket.Dialer

	mu      gosync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewListener creates a Listener. Call Start to begin receiving.
func NewListener(cfg Config, applier Applier) *Listener {
	return &Listener{
		cfg:     cfg,
		applier: applier,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Start launches the connect/read loop. It returns immediately; the
// listener keeps reconnecting with backoff until Close or context
// cancellation.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return apperrors.New(apperrors.ErrInvalid, "listener already started")
	}
	if l.cfg.URL == "" {
		return apperrors.New(apperrors.ErrInvalid, "listener URL is empty")
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true

	go l.run(ctx)
	return nil
}

// Close tears the connection down and stops the reconnect loop. It is
// safe to call on a listener that was never started.
func (l *Listener) Close() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	l.cancel()
	if l.conn != nil {
		l.conn.Close()
	}
	done := l.done
	l.mu.Unlock()

	<-done
}

// run dials, subscribes and reads until cancelled, reconnecting with
// exponential backoff after any failure.
func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.connect(ctx)
		if err != nil {
			logging.Warn("Change feed connect failed", map[string]interface{}{
				"url":   l.cfg.URL,
				"error": err.Error(),
				"retry": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = minBackoff
		logging.Info("Change feed connected", map[string]interface{}{"url": l.cfg.URL})

		l.readLoop(ctx, conn)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		conn.Close()
	}
}

// connect dials the feed and sends the subscription frame.
func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransientNetwork, "change feed dial failed", err)
	}

	sub := subscribeFrame{Action: "subscribe", Collections: l.cfg.Collections}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrSubscribeFailed, "change feed subscribe failed", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return conn, nil
}

// readLoop consumes frames until the connection breaks or the context
// is cancelled. A keepalive ping goroutine runs alongside it.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go l.pingLoop(conn, stopPing)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("Change feed read failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		l.handleFrame(message)
	}
}

// pingLoop keeps the connection alive until the read loop exits.
func (l *Listener) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one change event and merges it locally.
func (l *Listener) handleFrame(message []byte) {
	var event changeEvent
	if err := json.Unmarshal(message, &event); err != nil {
		logging.Warn("Skipping malformed change event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	typ, ok := changeTypeOf(event.Type)
	if !ok {
		// acknowledgment or unknown frame kind, not a row change
		return
	}
	if event.Collection == "" || event.Record.ID() == "" {
		logging.Warn("Skipping change event without collection or id", map[string]interface{}{
			"type":       event.Type,
			"collection": event.Collection,
		})
		return
	}

	merged, err := l.applier.ApplyRemoteChange(event.Collection, typ, event.Record)
	if err != nil {
		logging.ErrorWithCode("Failed to apply remote change", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{
				"collection": event.Collection,
				"id":         event.Record.ID(),
				"type":       event.Type,
			})
		return
	}

	if l.cfg.OnChange != nil {
		l.cfg.OnChange(event.Collection, merged)
	}
}

func changeTypeOf(s string) (enginesync.ChangeType, bool) {
	switch s {
	case "insert", "INSERT":
		return enginesync.ChangeInsert, true
	case "update", "UPDATE":
		return enginesync.ChangeUpdate, true
	case "delete", "DELETE":
		return enginesync.ChangeDelete, true
	default:
		return "", false
	}
}
