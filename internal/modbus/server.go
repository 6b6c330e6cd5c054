// Package modbus implements the Modbus TCP slave described in spec.md §4.4:
// MBAP framing, function codes 1/3/5/6/15/16, against the single unit id 1,
// backed directly by a *plant.State through internal/registermap.
//
// The framing and codec helpers are adapted from the teacher's tcp.go and
// codec.go; the teacher's generic, runtime-pluggable Server/Client/RTU
// machinery (built to support arbitrary datastores and both TCP and serial
// transports across many unit ids) is replaced here because this twin has
// exactly one static register layout, one transport, and one unit.
package modbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roplant/wtptwin/internal/plant"
)

// Metrics receives counts from the Modbus slave. internal/metrics
// implements this against Prometheus counters/gauges; tests can supply a
// no-op or a recording fake.
type Metrics interface {
	IncModbusRequest(function byte, outcome string)
	SetModbusClients(n int)
}

type noopMetrics struct{}

func (noopMetrics) IncModbusRequest(byte, string) {}
func (noopMetrics) SetModbusClients(int)          {}

// Server is the TCP listener side of the slave: it accepts connections and
// spawns one handler goroutine per connection (spec.md §4.4, §5 — "each
// connection handled independently").
type Server struct {
	State       *plant.State
	IdleTimeout time.Duration
	Metrics     Metrics
	Log         *slog.Logger

	mu       sync.Mutex
	clients  int
	listener net.Listener
}

// ListenAndServe binds addr and serves until ctx is canceled. It blocks
// until shutdown completes or Listen fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.Metrics == nil {
		s.Metrics = noopMetrics{}
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 120 * time.Second
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Addr returns the bound address, valid after ListenAndServe has started
// listening. Used by tests that bind to ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) trackClient(delta int) {
	s.mu.Lock()
	s.clients += delta
	n := s.clients
	s.mu.Unlock()
	s.Metrics.SetModbusClients(n)
}

// handleConn services one TCP client until it disconnects, idles out, or
// sends a malformed frame. A panic inside a single request (a programmer
// error in dispatch) is recovered here so it can never take down the
// process or another client's connection (spec.md §7).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	connID := uuid.NewString()
	s.Log.Info("modbus: client connected", "remote", remote, "conn_id", connID)
	s.trackClient(1)
	defer func() {
		conn.Close()
		s.trackClient(-1)
		s.Log.Info("modbus: client disconnected", "remote", remote, "conn_id", connID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		f, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.Log.Debug("modbus: idle timeout, closing", "conn_id", connID)
				return
			}
			s.Log.Warn("modbus: malformed frame, closing connection", "conn_id", connID, "error", err)
			s.Metrics.IncModbusRequest(0, "protocol_error")
			return
		}

		if f.unit != unitID {
			// Unknown unit: no response is defined for this on TCP; drop
			// the request and keep the connection open.
			continue
		}

		resp, outcome := s.handleOne(f.function, f.data)
		s.Metrics.IncModbusRequest(f.function, outcome)
		if outcome == "protocol_error" {
			s.Log.Warn("modbus: malformed PDU, closing connection", "conn_id", connID, "function", f.function)
			return
		}
		if err := writeFrame(conn, f.txID, respFunction(f.function, outcome), resp); err != nil {
			s.Log.Warn("modbus: write failed, closing connection", "conn_id", connID, "error", err)
			return
		}
	}
}

func respFunction(fn byte, outcome string) byte {
	if outcome == "exception" {
		return fn | 0x80
	}
	return fn
}

// handleOne recovers a panic from dispatch (a programmer error, per
// spec.md §7) and turns it into a server-failure-shaped protocol error so
// the connection is dropped rather than the process crashing.
func (s *Server) handleOne(fn byte, data []byte) (resp []byte, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("modbus: panic handling request, dropping connection", "function", fn, "panic", r)
			resp, outcome = nil, "protocol_error"
		}
	}()

	out, err := dispatch(fn, data, s.State)
	if err == nil {
		return out, "ok"
	}

	var exc *Exception
	if errors.As(err, &exc) {
		return []byte{exc.Code}, "exception"
	}
	return nil, "protocol_error"
}
