package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soundbench/soundbench/pkg/param"
)

// Host is the parameter-host contract the server calls into. It is
// implemented by the session coordinator. All methods are invoked from
// connection-handling goroutines and must be safe for concurrent use.
type Host interface {
	ListParameters() []param.Info
	GetParameter(id string) (param.Info, error)
	SetParameter(id string, value float64) (param.Info, error)

	// MeterFrame and SpectrumFrame are best-effort: ok is false when no
	// fresh data is available, and the server simply skips the push.
	MeterFrame() (MeterFrame, bool)
	SpectrumFrame() (SpectrumFrame, bool)
}

// Config controls the server's listen address and push cadence.
type Config struct {
	// Addr to bind. The control surface is a development tool, so the
	// default is loopback-only.
	Addr string

	// Path of the WebSocket endpoint.
	Path string

	// MeterInterval between meterFrame pushes. Zero disables the timer.
	MeterInterval time.Duration

	// SpectrumInterval between spectrumFrame pushes. Zero disables.
	SpectrumInterval time.Duration
}

// DefaultConfig returns the config used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Addr:             "127.0.0.1:8765",
		Path:             "/rpc",
		MeterInterval:    50 * time.Millisecond,
		SpectrumInterval: 100 * time.Millisecond,
	}
}

const (
	// sendQueueLen bounds the per-client outbound queue. A client that
	// falls this far behind is dropped rather than allowed to stall the
	// push timers.
	sendQueueLen = 64

	writeTimeout = 5 * time.Second
)

// Server owns the listener, the connected-client set, and the periodic
// metering push timers. Timers run independently of client activity.
type Server struct {
	log  *zap.Logger
	host Host
	cfg  Config

	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	listener net.Listener
	httpSrv  *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer builds a server around host. Call Start to bind the port,
// then Serve to run it.
func NewServer(log *zap.Logger, host Host, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	return &Server{
		log:  log.Named("rpc"),
		host: host,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local dev tool: the browser UI is served from a different
			// origin (the author's dev server), so cross-origin upgrades
			// are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Start binds the listen address. A port already in use surfaces here,
// before any goroutines run, so the caller can fail session startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("rpc: bind %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)
	s.httpSrv = &http.Server{Handler: mux}

	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("path", s.cfg.Path))
	return nil
}

// Addr reports the bound address. Valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections and drives the push timers until ctx is
// cancelled, then notifies clients and closes every connection.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("rpc: Serve before Start")
	}

	errc := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	meterC, stopMeter := tickerChan(s.cfg.MeterInterval)
	defer stopMeter()
	spectrumC, stopSpectrum := tickerChan(s.cfg.SpectrumInterval)
	defer stopSpectrum()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case err := <-errc:
			s.shutdown()
			return fmt.Errorf("rpc: serve: %w", err)
		case <-meterC:
			if frame, ok := s.host.MeterFrame(); ok {
				s.Broadcast(NotifyMeterFrame, frame)
			}
		case <-spectrumC:
			if frame, ok := s.host.SpectrumFrame(); ok {
				s.Broadcast(NotifySpectrumFrame, frame)
			}
		}
	}
}

// tickerChan returns a nil channel for a zero interval, which blocks
// forever in the select above.
func tickerChan(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Broadcast pushes a notification to every connected client. A client
// whose queue is full is dropped immediately.
func (s *Server) Broadcast(method string, params interface{}) {
	msg, err := json.Marshal(Notification{Method: method, Params: params})
	if err != nil {
		s.log.Error("marshal notification", zap.String("method", method), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.log.Warn("dropping slow client", zap.String("remote", c.conn.RemoteAddr().String()))
			s.dropLocked(c)
		}
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) shutdown() {
	s.Broadcast(NotifyShuttingDown, nil)

	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		s.dropLocked(c)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueLen)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.log.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	c.conn.Close()
}

// writePump serializes all writes for one connection. Exits when send is
// closed by drop.
func (s *Server) writePump(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.drop(c)
			// Drain remaining messages so Broadcast never blocks.
			for range c.send {
			}
			return
		}
	}
}

// readPump decodes requests and dispatches them. A malformed message gets
// a parse-error response; the connection stays open.
func (s *Server) readPump(c *client) {
	defer s.drop(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.respond(c, Response{ID: nil, Error: errParse(err.Error())})
			continue
		}

		s.respond(c, s.dispatch(req))
	}
}

// respond enqueues under the client-set lock: send channels are only
// closed under the same lock after removal, so a send can never race a
// close.
func (s *Server) respond(c *client, resp Response) {
	msg, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		s.dropLocked(c)
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}

	switch req.Method {
	case MethodListParameters:
		resp.Result = map[string]interface{}{"parameters": s.host.ListParameters()}

	case MethodGetParameter:
		var p getParameterParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
			resp.Error = errInvalidParams("getParameter requires a string id")
			break
		}
		info, err := s.host.GetParameter(p.ID)
		if err != nil {
			resp.Error = s.hostError(p.ID, err)
			break
		}
		resp.Result = info

	case MethodSetParameter:
		var p setParameterParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" || p.Value == nil {
			resp.Error = errInvalidParams("setParameter requires a string id and numeric value")
			break
		}
		info, err := s.host.SetParameter(p.ID, *p.Value)
		if err != nil {
			resp.Error = s.hostError(p.ID, err)
			break
		}
		resp.Result = info

	case MethodGetMeterFrame:
		frame, ok := s.host.MeterFrame()
		if !ok {
			resp.Error = &Error{Code: CodeNoData, Message: "no meter data"}
			break
		}
		resp.Result = frame

	case MethodPing:
		resp.Result = map[string]string{"pong": time.Now().UTC().Format(time.RFC3339Nano)}

	default:
		resp.Error = errMethodNotFound(req.Method)
	}

	return resp
}

func (s *Server) hostError(id string, err error) *Error {
	if errors.Is(err, ErrParameterNotFound) {
		return errParamNotFound(id)
	}
	return errInternal(err)
}
