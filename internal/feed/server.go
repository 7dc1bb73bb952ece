// Package feed serves the controller state over HTTP: a JSON status page and
// a websocket stream of region and agent events.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/regionstream/internal/core/events/bus"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/scene"
	"github.com/zeusync/regionstream/internal/stream"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

var ErrNotStarted = errors.New("feed: server not started")

// StatusSource reports region state.
type StatusSource interface {
	Snapshot() []stream.RegionStatus
}

// Message is one websocket frame.
type Message struct {
	Type     string       `json:"type"`
	Region   string       `json:"region,omitempty"`
	State    stream.State `json:"state,omitempty"`
	Proxy    string       `json:"proxy,omitempty"`
	Position *scene.Vec3  `json:"position,omitempty"`
	Mode     string       `json:"mode,omitempty"`
	At       time.Time    `json:"at"`
}

// Status is the /status body.
type Status struct {
	Regions []stream.RegionStatus `json:"regions"`
	Bus     bus.EventBusMetrics   `json:"bus"`
	// Events counts publications per event type since the server was created.
	Events      map[string]uint64 `json:"events"`
	LastFailure *DeliveryFailure  `json:"last_failure,omitempty"`
	Clients     int               `json:"clients"`
}

// DeliveryFailure is the most recent publication that some handler failed.
type DeliveryFailure struct {
	Type  string    `json:"type"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Addr: ":8088", ShutdownTimeout: 5 * time.Second}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Server struct {
	config   Config
	source   StatusSource
	bus      bus.EventBus
	logger   log.Log
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	subs    []bus.Subscription

	server   *http.Server
	listener net.Listener

	statsMu     sync.Mutex
	published   map[string]uint64
	lastFailure *DeliveryFailure
}

var _ bus.EventBusObserver = (*Server)(nil)

var feedEvents = []string{
	stream.EventRegionLoaded,
	stream.EventRegionShown,
	stream.EventRegionHidden,
	stream.EventRegionUnloaded,
	stream.EventAgentMoved,
}

// NewServer subscribes to the region and agent events on eventBus.
func NewServer(config Config, source StatusSource, eventBus bus.EventBus, logger log.Log) (*Server, error) {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Server{
		config: config,
		source: source,
		bus:    eventBus,
		logger: logger.With(log.String("component", "feed")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:   make(map[*client]struct{}),
		published: make(map[string]uint64),
	}
	eventBus.AddObserver(s)
	for _, typ := range feedEvents {
		sub, err := eventBus.SubscribeNamed(typ, "feed", s.onEvent)
		if err != nil {
			s.unsubscribe()
			return nil, err
		}
		s.subs = append(s.subs, sub)
	}
	return s, nil
}

// Handler routes /status and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("Feed listening", log.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Feed server stopped", log.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down and closes every websocket client.
func (s *Server) Stop(ctx context.Context) error {
	s.unsubscribe()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()

	if srv == nil {
		return ErrNotStarted
	}
	return srv.Shutdown(ctx)
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) OnPublish(eventType string, _ bus.Event) {
	s.statsMu.Lock()
	s.published[eventType]++
	s.statsMu.Unlock()
}

func (s *Server) OnDelivered(eventType string, handlers int, err error, duration time.Duration) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.lastFailure = &DeliveryFailure{Type: eventType, Error: err.Error(), At: time.Now().UTC()}
	s.statsMu.Unlock()
	s.logger.Warn("Event delivery failed",
		log.String("type", eventType),
		log.Int("handlers", handlers),
		log.Duration("took", duration),
		log.Error(err),
	)
}

func (s *Server) deliveryStats() (map[string]uint64, *DeliveryFailure) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	events := make(map[string]uint64, len(s.published))
	for typ, n := range s.published {
		events[typ] = n
	}
	var failure *DeliveryFailure
	if s.lastFailure != nil {
		f := *s.lastFailure
		failure = &f
	}
	return events, failure
}

func (s *Server) unsubscribe() {
	s.bus.RemoveObserver(s)
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		_ = s.bus.Unsubscribe(sub)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := Status{
		Regions: s.source.Snapshot(),
		Bus:     s.bus.GetMetrics(),
		Clients: s.Clients(),
	}
	status.Events, status.LastFailure = s.deliveryStats()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("Failed to write status", log.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("Feed client connected", log.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop discards client frames and returns when the connection closes.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debug("Feed client write failed", log.Error(err))
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	s.logger.Debug("Feed client disconnected")
}

func (s *Server) onEvent(e bus.Event) error {
	msg := Message{Type: e.Type(), At: e.Timestamp()}
	switch data := e.Data().(type) {
	case stream.RegionEvent:
		msg.Region = data.Region
		msg.State = data.State
		msg.Proxy = data.Proxy
		if data.Proxy != "" {
			pos := data.Position
			msg.Position = &pos
		}
	case stream.AgentEvent:
		pos := data.Position
		msg.Position = &pos
		msg.Mode = data.Mode
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.broadcast(payload)
	return nil
}

// broadcast queues payload for every client; a client with a full queue is dropped.
func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			delete(s.clients, c)
			close(c.send)
			s.logger.Warn("Dropping slow feed client")
		}
	}
}
