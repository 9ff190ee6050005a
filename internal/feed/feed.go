// Package feed streams marker changes to websocket clients.
package feed

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"vigil/internal/diagnostics"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vigil.feed")

const (
	OpInit   = "init"
	OpUpdate = "update"
	OpClear  = "clear"
)

// File is the current marker set of one document.
type File struct {
	URI     string               `json:"uri"`
	Version int32                `json:"version"`
	Markers []diagnostics.Marker `json:"markers"`
}

// Message is sent to clients as a JSON text frame. A new client first receives
// an init message holding every file with markers.
type Message struct {
	Op    string `json:"op"`
	Files []File `json:"files,omitempty"` // init
	File  *File  `json:"file,omitempty"`  // update, clear
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// sendBuffer is the number of messages queued per client. A client that
	// falls this far behind is disconnected.
	sendBuffer = 64
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// writeLoop drains send until it is closed or a write fails.
func (c *client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warningf("write to %s: %v", c.conn.RemoteAddr(), err)
			return
		}
	}
}

// Feed implements http.Handler. Publish matches workspace.Publisher and never
// waits on a client.
type Feed struct {
	mu      sync.Mutex
	files   map[string]File
	clients map[*client]struct{}
	closed  bool
}

func New() *Feed {
	return &Feed{
		files:   make(map[string]File),
		clients: make(map[*client]struct{}),
	}
}

// Publish records the markers of a document and broadcasts the change.
func (f *Feed) Publish(uri string, version int32, markers []diagnostics.Marker) {
	file := File{URI: uri, Version: version, Markers: markers}
	msg := Message{Op: OpUpdate, File: &file}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(markers) == 0 {
		if _, ok := f.files[uri]; !ok {
			return
		}
		delete(f.files, uri)
		file.Markers = []diagnostics.Marker{}
		msg.Op = OpClear
	} else {
		f.files[uri] = file
	}
	f.broadcast(msg)
}

// Files returns a snapshot of every file with markers, ordered by URI.
func (f *Feed) Files() []File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) snapshot() []File {
	files := make([]File, 0, len(f.files))
	for _, file := range f.files {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].URI < files[j].URI })
	return files
}

// broadcast queues msg for all clients. Callers hold mu.
func (f *Feed) broadcast(msg Message) {
	if len(f.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("marshal %s: %v", msg.Op, err)
		return
	}
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			log.Warningf("dropping slow client %s", c.conn.RemoteAddr())
			f.remove(c)
		}
	}
}

// remove disconnects c once. Callers hold mu.
func (f *Feed) remove(c *client) {
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
	c.conn.Close()
}

// ServeHTTP upgrades the connection and sends the current state.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("upgrade: %v", err)
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	data, err := json.Marshal(Message{Op: OpInit, Files: f.snapshot()})
	if err != nil {
		f.mu.Unlock()
		log.Errorf("marshal %s: %v", OpInit, err)
		conn.Close()
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- data
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	log.Debugf("client %s connected", conn.RemoteAddr())

	go c.writeLoop()
	defer func() {
		f.mu.Lock()
		f.remove(c)
		f.mu.Unlock()
	}()

	// keep connection open
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
}

// Close disconnects every client. Later connections are refused.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		f.remove(c)
	}
}
