package observe

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is a Sink that streams Events to WebSocket clients.
//
// Warning: A slow client misses events rather than slowing down the
// Engine.
type Hub struct {
	Upgrader websocket.Upgrader

	// Buffer is the number of events queued per client.
	Buffer int

	sync.Mutex
	clients map[chan []byte]string
}

func NewHub() *Hub {
	return &Hub{
		Buffer:  64,
		clients: make(map[chan []byte]string),
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.Lock()
	defer h.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c chan []byte, id string) {
	h.Lock()
	h.clients[c] = id
	h.Unlock()
}

func (h *Hub) rem(c chan []byte) {
	h.Lock()
	if _, have := h.clients[c]; have {
		delete(h.clients, c)
		close(c)
	}
	h.Unlock()
}

// Observe queues the Event for every client.
func (h *Hub) Observe(e *Event) {
	js := e.JSON()
	h.Lock()
	for c, id := range h.clients {
		select {
		case c <- js:
		default:
			log.Printf("hub client %s blocked", id)
		}
	}
	h.Unlock()
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c)
	}
	h.Unlock()
}

// ServeHTTP upgrades the connection and then writes events to it
// until the client goes away or the Hub is closed.  Anything the
// client sends is ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub upgrade error %s", err)
		return
	}
	defer conn.Close()

	out := make(chan []byte, h.Buffer)
	h.add(out, r.RemoteAddr)
	defer h.rem(out)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case js, ok := <-out:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
				log.Printf("hub write error %s", err)
				return
			}
		}
	}
}
