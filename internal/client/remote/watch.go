package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/gorilla/websocket"
)

const watchReadLimit = 8 << 20 // snapshots carry the full record set

// watchSub is the websocket-backed Subscription. The server pushes a full
// owner snapshot on every accepted write; the reader goroutine decodes and
// forwards them until the socket dies or Close is called.
type watchSub struct {
	conn *websocket.Conn
	ch   chan []models.Entry
	log  logging.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

// Watch dials the server's snapshot stream for the authenticated owner.
func (c *HTTPClient) Watch(ctx context.Context, ownerId string) (Subscription, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + apiPrefix + "/entries/watch"

	header := http.Header{}
	if access, _ := c.Tokens(); access != "" {
		header.Set("Authorization", "Bearer "+access)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	conn.SetReadLimit(watchReadLimit)

	w := &watchSub{
		conn: conn,
		ch:   make(chan []models.Entry, 1),
		log:  c.log,
	}

	// release the server-side listener if the caller's context ends first
	stop := context.AfterFunc(ctx, func() { _ = w.Close() })

	go func() {
		defer stop()
		defer close(w.ch)
		w.readLoop(ctx)
	}()

	return w, nil
}

func (w *watchSub) readLoop(ctx context.Context) {
	for {
		var frame struct {
			Entries []json.RawMessage `json:"entries"`
		}
		if err := w.conn.ReadJSON(&frame); err != nil {
			w.finish(classifyWatchError(err))
			return
		}

		snapshot := make([]models.Entry, 0, len(frame.Entries))
		for _, raw := range frame.Entries {
			var doc EntryDoc
			if err := json.Unmarshal(raw, &doc); err != nil || doc.ID == "" {
				// keep the stream alive; a later fixed copy can still land
				w.log.Warn(ctx, "skipping undecodable remote document", "id", docID(raw), "error", err)
				continue
			}
			snapshot = append(snapshot, fromDoc(doc))
		}

		select {
		case w.ch <- snapshot:
		case <-ctx.Done():
			w.finish(nil)
			return
		default:
			// the consumer is behind; drop the stale snapshot and deliver
			// the fresh one instead
			select {
			case <-w.ch:
			default:
			}
			w.ch <- snapshot
		}
	}
}

func classifyWatchError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	// anything else on a live socket is connectivity-shaped
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (w *watchSub) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.err = err
}

func (w *watchSub) C() <-chan []models.Entry {
	return w.ch
}

func (w *watchSub) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close tears down the socket. The reader goroutine then exits and C closes.
func (w *watchSub) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}
