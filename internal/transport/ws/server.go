package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"alertd/internal/alert"
	"alertd/internal/eventbus"
	"alertd/internal/transport"
	logx "alertd/pkg/logx"
)

// Source is the name this transport registers with the alert client.
const Source = "web"

const (
	writeTimeout = 5 * time.Second
	outBuffer    = 32
)

// Alerts is the part of the alert client the transport drives.
type Alerts interface {
	RegisterSource(ctx context.Context, name string, cb func(id string)) error
	AddAlert(d alert.Draft, done func(id string, err error))
	DeleteAlert(id string, done func(ok bool, err error))
	Snapshot(ctx context.Context) ([]alert.Record, error)
}

type Config struct {
	Addr       string
	RatePerSec int
}

// Server accepts websocket clients on /ws. Replies go to the requesting
// connection; alert events from the bus go to every connection.
type Server struct {
	cfg    Config
	alerts Alerts
	bus    eventbus.Bus
	log    logx.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(cfg Config, alerts Alerts, bus eventbus.Bus, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	return &Server{
		cfg:    cfg,
		alerts: alerts,
		bus:    bus,
		log:    log.With(logx.String("comp", "ws")),
		conns:  map[*conn]struct{}{},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	return mux
}

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve registers the web source, then serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	err := s.alerts.RegisterSource(ctx, Source, func(id string) {
		s.log.Debug("alert delivered to source", logx.String("id", id))
	})
	// a restarted server finds its source still registered
	if err != nil && !errors.Is(err, alert.ErrUnknownSource) {
		_ = ln.Close()
		return err
	}

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(64, eventbus.TypeAlertActive, eventbus.TypeAlertAcknowledged)
		defer unsub()
		go s.fanout(ctx, events)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("websocket listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	s.closeAll()
	return nil
}

// Conns reports the number of open connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) fanout(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, _ := e.Data.(eventbus.AlertData)
			f := transport.Frame{AlertID: data.ID}
			switch e.Type {
			case eventbus.TypeAlertActive:
				f.Type = transport.FrameActive
			case eventbus.TypeAlertAcknowledged:
				f.Type = transport.FrameAcknowledged
			default:
				continue
			}
			s.broadcast(f)
		}
	}
}

func (s *Server) broadcast(f transport.Frame) {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(f)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		_ = c.ws.Close(websocket.StatusGoingAway, "shutting down")
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	wc, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", logx.Err(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		ws:      wc,
		out:     make(chan transport.Frame, outBuffer),
		done:    ctx.Done(),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), s.cfg.RatePerSec),
		log:     s.log.With(logx.String("remote", r.RemoteAddr)),
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	c.log.Debug("client connected")

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		wc.CloseNow()
		c.log.Debug("client disconnected")
	}()

	go c.writeLoop(ctx)
	s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		var req transport.Request
		if err := wsjson.Read(ctx, c.ws, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.log.Debug("read failed", logx.Err(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.send(transport.ErrorFrame(req.AlertType, errors.New("rate limit exceeded")))
			continue
		}
		s.handle(ctx, c, req)
	}
}

func (s *Server) handle(ctx context.Context, c *conn, req transport.Request) {
	typ := strings.ToUpper(strings.TrimSpace(req.AlertType))
	switch typ {
	case transport.RequestTimer, transport.RequestAlarm:
		kind, _ := alert.ParseKind(typ)
		s.alerts.AddAlert(alert.Draft{Kind: kind, ScheduledAt: req.ScheduleTime, Source: Source}, func(id string, err error) {
			if err != nil {
				c.send(transport.ErrorFrame(typ, err))
				return
			}
			c.send(transport.Frame{Type: transport.FrameScheduled, Request: typ, AlertID: id})
		})
	case transport.RequestDelete:
		if req.AlertID == "" {
			c.send(transport.ErrorFrame(typ, errors.New("alert_id required")))
			return
		}
		s.alerts.DeleteAlert(req.AlertID, func(ok bool, err error) {
			f := transport.Frame{Type: transport.FrameDeleted, Request: typ, AlertID: req.AlertID, OK: transport.Bool(ok)}
			if err != nil {
				f.Error = err.Error()
			}
			c.send(f)
		})
	case transport.RequestList:
		recs, err := s.alerts.Snapshot(ctx)
		if err != nil {
			c.send(transport.ErrorFrame(typ, err))
			return
		}
		views := make([]transport.AlertView, 0, len(recs))
		for _, r := range recs {
			views = append(views, transport.ViewOf(r))
		}
		c.send(transport.Frame{Type: transport.FrameAlerts, Request: typ, Alerts: views})
	default:
		c.send(transport.ErrorFrame(req.AlertType, fmt.Errorf("unknown alert_type %q", req.AlertType)))
	}
}

type conn struct {
	ws      *websocket.Conn
	out     chan transport.Frame
	done    <-chan struct{}
	limiter *rate.Limiter
	log     logx.Logger
}

// send queues f without blocking. Replies run on the alert client task, so a
// slow client loses frames instead of stalling it.
func (c *conn) send(f transport.Frame) {
	select {
	case <-c.done:
	case c.out <- f:
	default:
		c.log.Warn("client too slow, frame dropped", logx.String("type", f.Type))
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, f)
			cancel()
			if err != nil {
				c.log.Debug("write failed", logx.Err(err))
				c.ws.CloseNow()
				return
			}
		}
	}
}
