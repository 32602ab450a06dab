package backend

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oktsec/wafwatch/internal/waf"
)

const (
	writeWait      = 5 * time.Second
	clientQueueLen = 32
)

// notifier fans notifications out to websocket clients. Each client has
// its own writer goroutine; a client whose queue is full is dropped.
type notifier struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	logger  *slog.Logger
	metrics *Metrics
}

type streamClient struct {
	conn *websocket.Conn
	send chan waf.Notification
	once sync.Once
}

func newNotifier(logger *slog.Logger, metrics *Metrics) *notifier {
	return &notifier{
		clients: make(map[*streamClient]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// serve registers conn and blocks until the client goes away.
func (n *notifier) serve(conn *websocket.Conn) {
	c := &streamClient{conn: conn, send: make(chan waf.Notification, clientQueueLen)}

	n.mu.Lock()
	n.clients[c] = struct{}{}
	n.mu.Unlock()
	n.metrics.StreamClients.Inc()
	n.logger.Debug("stream client connected", "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				n.logger.Debug("stream write failed", "error", err)
				n.remove(c)
				// Drain so broadcast never blocks on this client.
				for range c.send {
				}
				return
			}
		}
	}()

	// Clients never send anything; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	n.remove(c)
	<-done
	_ = conn.Close()
	n.logger.Debug("stream client disconnected", "remote", conn.RemoteAddr().String())
}

func (n *notifier) remove(c *streamClient) {
	n.mu.Lock()
	_, ok := n.clients[c]
	delete(n.clients, c)
	n.mu.Unlock()
	if ok {
		n.metrics.StreamClients.Dec()
	}
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (n *notifier) broadcast(msg waf.Notification) {
	n.mu.Lock()
	var slow []*streamClient
	for c := range n.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	n.mu.Unlock()

	for _, c := range slow {
		n.logger.Warn("dropping slow stream client", "remote", c.conn.RemoteAddr().String())
		n.remove(c)
	}
}

// closeAll disconnects every client.
func (n *notifier) closeAll() {
	n.mu.Lock()
	clients := make([]*streamClient, 0, len(n.clients))
	for c := range n.clients {
		clients = append(clients, c)
	}
	n.mu.Unlock()
	for _, c := range clients {
		n.remove(c)
	}
}
