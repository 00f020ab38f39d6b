// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is an accepted client connection
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Acceptor hands out client connections one at a time
type Acceptor interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// tcpAcceptor adapts a net.Listener to Acceptor
type tcpAcceptor struct {
	net.Listener
}

func (a tcpAcceptor) Accept() (Conn, error) {
	return a.Listener.Accept()
}

// SocketLink serves a single network client at a time, forwarding everything
// it receives to its sink and everything it is sent to the client.
type SocketLink struct {
	addr  string
	cfg   Config
	stats *Statistics
	log   *logrus.Entry

	listenMu sync.Mutex
	acceptor Acceptor
	sink     Sender

	mu      sync.Mutex
	conn    Conn
	session string
}

// NewSocketLink creates a link listening on addr. cfg must be normalized.
func NewSocketLink(addr string, cfg Config, stats *Statistics) *SocketLink {
	if stats == nil {
		stats = NewStatistics()
	}
	return &SocketLink{
		addr:  addr,
		cfg:   cfg,
		stats: stats,
		log:   cfg.Logger.WithField("listen", addr),
	}
}

// SetSink sets where client bytes are forwarded. Call before Run.
func (s *SocketLink) SetSink(sink Sender) {
	s.sink = sink
}

// Listen binds the listening endpoint. Run calls it if it has not been called.
func (s *SocketLink) Listen() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.acceptor != nil {
		return nil
	}

	var a Acceptor
	var err error
	switch s.cfg.Transport {
	case TransportWebSocket:
		a, err = ListenWebSocket(s.addr, s.cfg.WebSocketPath)
	default:
		var ln net.Listener
		ln, err = net.Listen("tcp", s.addr)
		if err == nil {
			a = tcpAcceptor{ln}
		}
	}
	if err != nil {
		return err
	}
	s.acceptor = a
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *SocketLink) Addr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// Connected reports whether a client is attached
func (s *SocketLink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Run accepts clients until ctx is done.
func (s *SocketLink) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { s.acceptor.Close() })
	defer stop()

	s.log.WithFields(logrus.Fields{
		"transport": s.cfg.Transport,
		"addr":      s.acceptor.Addr().String(),
	}).Info("socket link listening")
	for {
		conn, err := s.acceptor.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.WithError(err).Warn("accept failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		s.serve(ctx, conn)
	}
}

// serve forwards client bytes until the client goes away.
func (s *SocketLink) serve(ctx context.Context, conn Conn) {
	session := uuid.NewString()[:8]
	log := s.log.WithFields(logrus.Fields{
		"session": session,
		"remote":  conn.RemoteAddr().String(),
	})

	s.mu.Lock()
	s.conn = conn
	s.session = session
	s.mu.Unlock()
	s.stats.ClientConnects.Add(1)
	log.Info("client connected")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		s.mu.Lock()
		s.conn = nil
		s.session = ""
		s.mu.Unlock()
		conn.Close()
	}()

	// One read never exceeds what a single length byte can describe.
	buf := make([]byte, moteframe.MaxPayloadSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.stats.BytesFromClient.Add(uint64(n))
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if s.sink != nil {
				if serr := s.sink.Send(ctx, chunk); serr != nil {
					if ctx.Err() != nil {
						return
					}
					log.WithError(serr).Warn("forward to serial failed")
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Info("client disconnected")
			}
			return
		}
	}
}

// Send writes payload to the connected client. Without a client, or when the
// write fails, the bytes are dropped. It never blocks on the context: the
// write is bounded by WriteTimeout instead.
func (s *SocketLink) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.stats.DroppedToClient.Add(1)
		return nil
	}
	if d, ok := s.conn.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			s.log.WithField("session", s.session).WithError(err).Debug("set write deadline failed")
		}
	}
	n, err := s.conn.Write(payload)
	s.stats.BytesToClient.Add(uint64(n))
	if err != nil {
		s.stats.DroppedToClient.Add(1)
		s.log.WithField("session", s.session).WithError(err).Debug("client write failed")
	}
	return nil
}
