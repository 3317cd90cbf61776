package http

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groundlink-io/groundlink/internal/gcsd/bus"
	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from a different origin than the API.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	feedBuffer = 512
)

// connSeq distinguishes concurrent feed subscribers on the bus.
var connSeq atomic.Uint64

// feedConn serializes writes to one websocket: the bus subscriber
// goroutine sends event frames while the keepalive goroutine sends pings.
type feedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *feedConn) writeEvent(ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return f.conn.WriteJSON(ev)
}

func (f *feedConn) ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return f.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleEvents upgrades the connection and streams mission events as JSON
// frames. An optional ?kind= query restricts the feed to one event kind.
// Frames are written straight from the bus subscriber, so a lagging socket
// sheds load in the bus queue, where drops are counted and alerted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(err, "Websocket upgrade failed")
		return
	}

	var filter bus.FilterFunc
	if kind := r.URL.Query().Get("kind"); kind != "" {
		want := event.Kind(kind)
		filter = func(ev event.Event) bool { return ev.Kind == want }
	}

	fc := &feedConn{conn: conn}
	name := fmt.Sprintf("ws-feed-%d", connSeq.Add(1))
	if err := s.sess.Subscribe(name, feedBuffer, filter, func(ev event.Event) {
		if err := fc.writeEvent(ev); err != nil {
			// Closing wakes the reader, which tears the feed down.
			conn.Close()
		}
	}); err != nil {
		conn.Close()
		return
	}

	// Reader goroutine: we never expect client frames, but reading is
	// required to notice close frames and pongs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go s.keepFeedAlive(fc, name, done)
}

// keepFeedAlive pings the peer until the connection dies, then detaches
// the bus subscriber. Unsubscribe happens here rather than in the write
// path because it waits for the subscriber to drain.
func (s *Server) keepFeedAlive(fc *feedConn, name string, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		fc.conn.Close()
		s.sess.Unsubscribe(name)
	}()

	for {
		select {
		case <-ticker.C:
			if err := fc.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
