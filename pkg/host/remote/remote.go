// Package remote exposes a running host over a websocket. Every property
// value the plugin sends is broadcast as JSON; clients set and get
// properties with the same JSON messages.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justyntemme/notes/pkg/atom"
	"github.com/justyntemme/notes/pkg/framework/debug"
	"github.com/justyntemme/notes/pkg/framework/urid"
	"github.com/justyntemme/notes/pkg/host"
	"github.com/justyntemme/notes/pkg/notes"
)

// Message operations
const (
	OpSet   = "set"
	OpGet   = "get"
	OpError = "error"
)

// Value types
const (
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeString = "string"
	TypePath   = "path"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = 54 * time.Second
)

// Message is the JSON form of a patch message. Property is a full URI or
// the name of a notes property such as "text".
type Message struct {
	Op       string          `json:"op"`
	Property string          `json:"property,omitempty"`
	Type     string          `json:"type,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

var errInvalid = errors.New("invalid message")

// Server is an http.Handler upgrading requests to websocket sessions
type Server struct {
	host     *host.Host
	log      *debug.Logger
	upgrader websocket.Upgrader
	cancel   func()
	props    map[string]urid.URID

	mu      sync.Mutex // guards clients and forge
	clients map[*client]bool
	forge   *atom.Forge
	buf     []byte
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a server broadcasting the output of h
func New(h *host.Host, log *debug.Logger) *Server {
	if log == nil {
		log = debug.Discard()
	}

	s := &Server{
		host:    h,
		log:     log,
		clients: make(map[*client]bool),
		forge:   atom.NewForge(h.URIDs()),
		buf:     make([]byte, notes.MaxTextSize+notes.MaxImageSize),
		props:   make(map[string]urid.URID, len(notes.Definitions)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, def := range notes.Definitions {
		s.props[def.Property] = h.Map().Map(def.Property)
	}
	s.cancel = h.Subscribe(s.broadcast)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// Close stops broadcasting and disconnects every client
func (s *Server) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// broadcast runs on the host cycle and must not block
func (s *Server) broadcast(_ int64, event atom.Atom) {
	msg, ok := s.encode(event)
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.log.Warn("dropping slow websocket client")
			close(c.send)
			delete(s.clients, c)
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

// reply queues msg for c alone
func (s *Server) reply(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (s *Server) encode(event atom.Atom) (Message, bool) {
	u := s.host.URIDs()
	p, ok := u.ParsePatch(event)
	if !ok || p.Kind != u.PatchSet {
		return Message{}, false
	}

	msg := Message{Op: OpSet, Property: s.host.Map().Unmap(p.Property)}

	var value any
	switch p.Value.Type {
	case u.Int:
		msg.Type = TypeInt
		value, _ = p.Value.Int32()
	case u.Bool:
		msg.Type = TypeBool
		value, _ = p.Value.Bool()
	case u.String:
		msg.Type = TypeString
		value = string(p.Value.Chars())
	case u.Path:
		msg.Type = TypePath
		value = string(p.Value.Chars())
	default:
		return Message{}, false
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return Message{}, false
	}
	msg.Value = raw
	return msg, true
}

// property resolves a full or short property name. The empty name is 0.
func (s *Server) property(name string) (urid.URID, error) {
	if name == "" {
		return 0, nil
	}
	if !strings.Contains(name, ":") {
		name = notes.URI + "#" + name
	}
	key, ok := s.props[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown property %q", errInvalid, name)
	}
	return key, nil
}

// handle converts msg to patch messages and queues them for the plugin. A
// set is followed by a get so the new value reaches the UI and every client.
func (s *Server) handle(msg Message) error {
	key, err := s.property(msg.Property)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Op {
	case OpGet:
		s.forge.SetBuffer(s.buf)
		s.forge.Get(0, key)
		return s.submit()

	case OpSet:
		if key == 0 {
			return fmt.Errorf("%w: set without property", errInvalid)
		}
		if err := s.forgeSet(key, msg); err != nil {
			return err
		}
		if err := s.submit(); err != nil {
			return err
		}
		s.forge.SetBuffer(s.buf)
		s.forge.Get(0, key)
		return s.submit()
	}

	return fmt.Errorf("%w: unknown op %q", errInvalid, msg.Op)
}

func (s *Server) forgeSet(key urid.URID, msg Message) error {
	s.forge.SetBuffer(s.buf)
	frame := s.forge.SetHead(0, key)

	switch msg.Type {
	case TypeInt:
		var v int32
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%w: %v", errInvalid, err)
		}
		s.forge.Int(v)
	case TypeBool:
		var v bool
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%w: %v", errInvalid, err)
		}
		s.forge.Bool(v)
	case TypeString, TypePath:
		var v string
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%w: %v", errInvalid, err)
		}
		if msg.Type == TypeString {
			s.forge.String(v)
		} else {
			s.forge.Path(v)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalid, msg.Type)
	}

	s.forge.Pop(frame)
	return nil
}

func (s *Server) submit() error {
	if err := s.forge.Err(); err != nil {
		return err
	}
	return s.host.Submit(s.forge.Bytes())
}

func (c *client) readPump() {
	defer func() {
		c.server.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.server.reply(c, errorMessage(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.log.Debug("websocket read: %v", err)
			}
			return
		}

		if err := c.server.handle(msg); err != nil {
			c.server.reply(c, errorMessage(err))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorMessage(err error) Message {
	raw, _ := json.Marshal(err.Error())
	return Message{Op: OpError, Value: raw}
}
