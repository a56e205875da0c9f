// ABOUTME: Stream server fanning encoded chunks out to HTTP and websocket listeners
// ABOUTME: Pumps the encoder output, caches segment headers and serves playlist control and metrics
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-transcode/internal/discovery"
	"github.com/Sendspin/sendspin-transcode/internal/metrics"
	"github.com/Sendspin/sendspin-transcode/internal/version"
	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/playlist"
	"github.com/Sendspin/sendspin-transcode/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// listenerQueue is the number of messages buffered per listener before it is dropped
	listenerQueue = 256

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	statusRefresh = time.Second
)

// Source is the encoded stream the server publishes
type Source interface {
	GetBuffer(block bool) (*audio.Buffer, audio.BufferResult)
	ActualFormat() audio.Format
	Codec() string
	ContainerName() string
	MimeType() string
}

// Controller is the playlist as seen by websocket controllers
type Controller interface {
	Play()
	Pause()
	Paused() bool
	Seek(id uuid.UUID, seconds float64) error
	Remove(id uuid.UUID) error
	Add(pathOrURL string) (uuid.UUID, error)
	Items() []playlist.Item
	Current() (playlist.Item, float64, bool)
}

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool
	// AllowControl accepts controller/command messages from websocket listeners
	AllowControl bool
	BitRate      int
}

// Server publishes one encoded stream
type Server struct {
	config   Config
	serverID string

	source     Source
	controller Controller
	metrics    *metrics.Metrics

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// listenersMu guards listeners and the header cache
	listenersMu sync.RWMutex
	listeners   map[string]*Listener
	// Container header chunks of the current segment, replayed to late joiners
	header        []*audio.Buffer
	headerOpen    bool
	segments      uint64
	chunks        uint64
	bytesProduced uint64

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Listener is one connected consumer of the stream
type Listener struct {
	ID        string
	Name      string
	Transport string // "http" or "ws"
	Conn      *websocket.Conn

	// Messages: *audio.Buffer chunks (one reference each) and protocol.Message
	sendChan chan interface{}
	kick     chan struct{}
	kickOnce sync.Once

	mu        sync.RWMutex
	delivered uint64
}

func newListener(name, transport string) *Listener {
	return &Listener{
		ID:        uuid.New().String(),
		Name:      name,
		Transport: transport,
		sendChan:  make(chan interface{}, listenerQueue),
		kick:      make(chan struct{}),
	}
}

// drop disconnects the listener
func (l *Listener) drop() {
	l.kickOnce.Do(func() {
		close(l.kick)
	})
}

// DisplayName returns the name the listener announced, or its address
func (l *Listener) DisplayName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.Name
}

// Delivered returns the number of payload bytes written to the listener
func (l *Listener) Delivered() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.delivered
}

func (l *Listener) addDelivered(n int) {
	l.mu.Lock()
	l.delivered += uint64(n)
	l.mu.Unlock()
}

// New creates a server for source. controller and m may be nil; gatherer
// defaults to the Prometheus default gatherer.
func New(config Config, source Source, controller Controller, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:     config,
		serverID:   uuid.New().String(),
		source:     source,
		controller: controller,
		metrics:    m,
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Listeners are expected on a trusted local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		listeners:  make(map[string]*Listener),
		headerOpen: true,
		startTime:  time.Now(),
		stopChan:   make(chan struct{}),
	}

	s.mux.HandleFunc("/stream", s.handleStream)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the HTTP handler serving /stream, /ws and /metrics
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop, a TUI quit or an HTTP error.
// The chunk pump keeps running until the source is detached.
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, s.config.Port)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.Port); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Info: append([]string{
				"path=/stream",
				"ws=/ws",
				"codec=" + s.source.Codec(),
				"container=" + s.source.ContainerName(),
			}, version.TXT()...),
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	go s.pump()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.statusLoop()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Stream server listening on %s (%s, %s)", addr, s.source.Codec(), s.source.MimeType())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	// Reject new listeners
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()
	s.Stop()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// pump forwards encoder output to the listeners until the source is detached
func (s *Server) pump() {
	for {
		chunk, res := s.source.GetBuffer(true)
		switch res {
		case audio.BufferReady:
			s.broadcastChunk(chunk)
		case audio.BufferEnd:
			s.endSegment()
		default:
			log.Printf("Stream source detached")
			return
		}
	}
}

// broadcastChunk hands one reference of chunk to every listener and releases the caller's
func (s *Server) broadcastChunk(chunk *audio.Buffer) {
	defer chunk.Unref()

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	// Chunks ahead of the first item chunk of a segment are container headers
	if chunk.Item == uuid.Nil && s.headerOpen {
		s.header = append(s.header, chunk.Ref())
	} else {
		s.headerOpen = false
	}
	s.chunks++
	s.bytesProduced += uint64(len(chunk.Bytes()))

	for _, l := range s.listeners {
		s.send(l, chunk.Ref())
	}

	if s.config.Debug {
		log.Printf("[DEBUG] chunk of %d bytes (pos %.3f) to %d listeners", len(chunk.Bytes()), chunk.Pos, len(s.listeners))
	}
}

// endSegment resets the header cache and tells websocket listeners the segment ended
func (s *Server) endSegment() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, h := range s.header {
		h.Unref()
	}
	s.header = nil
	s.headerOpen = true
	s.segments++

	msg := protocol.Message{Type: protocol.TypeStreamEnd, Payload: protocol.StreamEnd{Segment: s.segments}}
	for _, l := range s.listeners {
		s.send(l, msg)
	}
	log.Printf("End of segment %d", s.segments)
}

// send queues msg for l without blocking. A listener that cannot keep up is dropped
// since a gap would corrupt its container stream. Called with listenersMu held.
func (s *Server) send(l *Listener, msg interface{}) {
	select {
	case l.sendChan <- msg:
	default:
		release(msg)
		s.metrics.RecordDropped()
		log.Printf("Listener %s (%s) too slow, dropping", l.DisplayName(), l.ID)
		l.drop()
	}
}

// broadcast queues a control message for every websocket listener
func (s *Server) broadcast(msg protocol.Message) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, l := range s.listeners {
		if l.Transport == "ws" {
			s.send(l, msg)
		}
	}
}

func release(msg interface{}) {
	if chunk, ok := msg.(*audio.Buffer); ok {
		chunk.Unref()
	}
}

// addListener registers l after queueing preface messages and the cached headers,
// so a late joiner receives a decodable stream
func (s *Server) addListener(l *Listener, preface ...interface{}) {
	s.listenersMu.Lock()
	for _, msg := range preface {
		s.send(l, msg)
	}
	for _, h := range s.header {
		s.send(l, h.Ref())
	}
	s.listeners[l.ID] = l
	s.listenersMu.Unlock()

	s.metrics.ListenerConnected(l.Transport)
	log.Printf("Listener connected: %s (%s, %s)", l.DisplayName(), l.Transport, l.ID)
	s.updateTUI()
}

// removeListener unregisters l and releases anything still queued for it
func (s *Server) removeListener(l *Listener) {
	s.listenersMu.Lock()
	delete(s.listeners, l.ID)
	s.listenersMu.Unlock()

	for {
		select {
		case msg := <-l.sendChan:
			release(msg)
		default:
			s.metrics.ListenerDisconnected(l.Transport)
			log.Printf("Listener disconnected: %s", l.DisplayName())
			s.updateTUI()
			return
		}
	}
}

// ListenerCount returns the number of connected listeners
func (s *Server) ListenerCount() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners)
}

// handleStream serves the container byte stream over chunked HTTP
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", s.source.MimeType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Codec", s.source.Codec())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	l := newListener(r.RemoteAddr, "http")
	s.addListener(l)
	defer s.removeListener(l)

	for {
		select {
		case msg := <-l.sendChan:
			chunk, ok := msg.(*audio.Buffer)
			if !ok {
				// Segment boundaries are implicit in the byte stream
				continue
			}
			n, err := w.Write(chunk.Bytes())
			chunk.Unref()
			if err != nil {
				if s.config.Debug {
					log.Printf("[DEBUG] HTTP listener %s write error: %v", l.DisplayName(), err)
				}
				return
			}
			flusher.Flush()
			l.addDelivered(n)
			s.metrics.RecordDelivered(n)

		case <-l.kick:
			return
		case <-r.Context().Done():
			return
		case <-s.stopChan:
			return
		}
	}
}

// handleWebSocket serves framed chunks and control messages over a websocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	l := newListener(r.RemoteAddr, "ws")
	l.Conn = conn

	hello := protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{
		ServerID:        s.serverID,
		Name:            s.config.Name,
		Version:         protocol.ProtocolVersion,
		SoftwareVersion: version.Version,
	}}
	start := protocol.Message{Type: protocol.TypeStreamStart, Payload: s.streamStart()}

	s.addListener(l, hello, start)
	defer s.removeListener(l)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.listenerWriter(l)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleListenerMessage(l, data)
	}
	l.drop()
}

func (s *Server) streamStart() protocol.StreamStart {
	f := s.source.ActualFormat()
	return protocol.StreamStart{
		Codec:        s.source.Codec(),
		Container:    s.source.ContainerName(),
		MimeType:     s.source.MimeType(),
		SampleFormat: f.SampleFormat.String(),
		SampleRate:   f.SampleRate,
		Channels:     f.Channels(),
		Layout:       f.Layout.String(),
		BitRate:      s.config.BitRate,
	}
}

// listenerWriter sends queued messages to a websocket listener. It closes the
// connection when it stops so the reader loop ends too.
func (s *Server) listenerWriter(l *Listener) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer l.Conn.Close()

	for {
		select {
		case msg := <-l.sendChan:
			switch v := msg.(type) {
			case *audio.Buffer:
				frame := protocol.EncodeChunk(v.Pos, v.Bytes())
				v.Unref()
				l.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := l.Conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					log.Printf("Error writing binary message: %v", err)
					return
				}
				n := len(frame) - protocol.ChunkHeaderSize
				l.addDelivered(n)
				s.metrics.RecordDelivered(n)
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				l.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := l.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message: %v", err)
					return
				}
			}

		case <-ticker.C:
			if err := l.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-l.kick:
			return
		case <-s.stopChan:
			return
		}
	}
}

// handleListenerMessage processes text messages from websocket listeners
func (s *Server) handleListenerMessage(l *Listener, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeClientHello:
		var hello protocol.ClientHello
		if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
			log.Printf("Error decoding client hello: %v", err)
			return
		}
		if hello.Name != "" {
			l.mu.Lock()
			l.Name = hello.Name
			l.mu.Unlock()
			s.updateTUI()
		}
	case protocol.TypeControllerCommand:
		var cmd protocol.ControllerCommand
		if err := protocol.DecodePayload(msg.Payload, &cmd); err != nil {
			s.sendError(l, "invalid_command", err.Error())
			return
		}
		s.handleCommand(l, cmd)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// handleCommand applies a playlist command and broadcasts the new state
func (s *Server) handleCommand(l *Listener, cmd protocol.ControllerCommand) {
	if !s.config.AllowControl || s.controller == nil {
		s.sendError(l, "control_disabled", "playlist control is disabled")
		return
	}

	var err error
	switch cmd.Command {
	case protocol.CommandPlay:
		s.controller.Play()
	case protocol.CommandPause:
		s.controller.Pause()
	case protocol.CommandSeek:
		var id uuid.UUID
		if id, err = s.itemID(cmd.Item); err == nil {
			if err = s.controller.Seek(id, cmd.Position); err == nil {
				s.broadcast(protocol.Message{Type: protocol.TypeStreamClear, Payload: protocol.StreamClear{}})
			}
		}
	case protocol.CommandRemove:
		var id uuid.UUID
		if id, err = s.itemID(cmd.Item); err == nil {
			err = s.controller.Remove(id)
		}
	case protocol.CommandAdd:
		_, err = s.controller.Add(cmd.Path)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Command)
	}

	if err != nil {
		s.sendError(l, "command_failed", err.Error())
		return
	}
	log.Printf("Listener %s: %s", l.DisplayName(), cmd.Command)
	s.broadcast(protocol.Message{Type: protocol.TypeServerState, Payload: s.state()})
}

// itemID parses an item ID; an empty ID selects the current item
func (s *Server) itemID(raw string) (uuid.UUID, error) {
	if raw == "" {
		item, _, ok := s.controller.Current()
		if !ok {
			return uuid.Nil, fmt.Errorf("nothing is playing")
		}
		return item.ID, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid item id %q: %w", raw, err)
	}
	return id, nil
}

func (s *Server) state() protocol.ServerState {
	st := protocol.ServerState{Playing: !s.controller.Paused()}
	for _, item := range s.controller.Items() {
		st.Items = append(st.Items, protocol.ItemState{ID: item.ID.String(), Title: item.Title})
	}
	if item, pos, ok := s.controller.Current(); ok {
		st.Current = item.ID.String()
		st.Position = pos
	}
	return st
}

func (s *Server) sendError(l *Listener, code, message string) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.send(l, protocol.Message{Type: protocol.TypeServerError, Payload: protocol.ServerError{Error: code, Message: message}})
}

// statusLoop refreshes the TUI until Stop
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateTUI()
		case <-s.stopChan:
			return
		}
	}
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return strconv.FormatFloat(float64(n)/(1<<20), 'f', 1, 64) + " MiB"
	case n >= 1<<10:
		return strconv.FormatFloat(float64(n)/(1<<10), 'f', 1, 64) + " KiB"
	default:
		return strconv.FormatUint(n, 10) + " B"
	}
}
