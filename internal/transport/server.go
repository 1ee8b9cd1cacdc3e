package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
)

// replacedReason is the disconnect reason socket.io reports for sockets the
// server disconnected itself. It marks an inbound connection that was
// replaced by a newer one from the same source.
const replacedReason = "server namespace disconnect"

// bindRetryInterval is the pause between attempts to bind an address that
// is still held by a previous instance.
const bindRetryInterval = 50 * time.Millisecond

// ServerOptions configures a Server.
type ServerOptions struct {
	Alias string
	Addr  string
	// BindTimeout bounds how long Start retries an address in use.
	BindTimeout time.Duration
	Dispatcher  *Dispatcher
}

// Server accepts connections from dependents, serves their calls and relays
// publications to subscribed connections.
type Server struct {
	opts   ServerOptions
	logger *slog.Logger
	ctx    context.Context

	io       *socket.Server
	http     *http.Server
	listener net.Listener

	mu      sync.Mutex
	inbound map[string]*socket.Socket
	onPeer  func(alias string, connected bool)
}

// NewServer returns an unstarted server.
func NewServer(ctx context.Context, opts ServerOptions) *Server {
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(nil, nil)
	}
	logger := ctxlog.FromContext(ctx).With("component", "transport-server")
	return &Server{
		opts:    opts,
		logger:  logger,
		ctx:     ctxlog.WithLogger(ctx, logger),
		inbound: make(map[string]*socket.Socket),
	}
}

// OnPeer registers fn to be told when a dependent connects or goes away.
func (s *Server) OnPeer(fn func(alias string, connected bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPeer = fn
}

// Start binds the listen address and begins serving. An address that is
// still in use is retried until BindTimeout elapses.
func (s *Server) Start(ctx context.Context) error {
	l, err := s.listen(ctx)
	if err != nil {
		return err
	}
	s.listener = l

	s.io = socket.NewServer(nil, nil)
	s.io.Use(func(sock *socket.Socket, next func(*socket.ExtendedError)) {
		if sourceOf(sock) == "" {
			next(socket.NewExtendedError("missing source query parameter", nil))
			return
		}
		next(nil)
	})
	s.io.On("connection", func(clients ...any) {
		sock, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.onConnection(sock)
	})

	s.http = &http.Server{Handler: s.io.ServeHandler(nil)}
	go func() {
		if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Transport server stopped.", "error", err)
		}
	}()
	s.logger.Info("Transport server listening.", "addr", l.Addr().String())
	return nil
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	deadline := time.Now().Add(s.opts.BindTimeout)
	for {
		l, err := net.Listen("tcp", s.opts.Addr)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
		}
		s.logger.Debug("Transport address still in use, retrying.", "addr", s.opts.Addr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bindRetryInterval):
		}
	}
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

func sourceOf(sock *socket.Socket) string {
	if hs := sock.Handshake(); hs != nil {
		if v := hs.Query[SourceQuery]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func (s *Server) onConnection(sock *socket.Socket) {
	source := sourceOf(sock)
	logger := s.logger.With("source", source, "sid", string(sock.Id()))
	ctx := ctxlog.WithLogger(s.ctx, logger)

	s.mu.Lock()
	previous := s.inbound[source]
	s.inbound[source] = sock
	onPeer := s.onPeer
	s.mu.Unlock()

	if previous != nil {
		logger.Debug("Replacing previous inbound connection.", "previous_sid", string(previous.Id()))
		previous.Disconnect(false)
	}
	logger.Debug("Inbound connection established.")
	if onPeer != nil {
		onPeer(source, true)
	}

	for _, name := range s.opts.Dispatcher.Names() {
		action := name
		sock.On(action, func(args ...any) {
			go s.opts.Dispatcher.serve(ctx, source, action, args)
		})
	}

	sock.On(EventSubscribe, func(args ...any) {
		args, ack := splitAck(args)
		var channel string
		if err := decodeArg(args, &channel); err != nil {
			logger.Warn("Invalid subscribe request.", "error", err)
			return
		}
		sock.Join(socket.Room(channel))
		logger.Debug("Dependent subscribed.", "channel", channel)
		if ack != nil {
			ack([]any{channel}, nil)
		}
	})

	sock.On(EventUnsubscribe, func(args ...any) {
		args, _ = splitAck(args)
		var channel string
		if err := decodeArg(args, &channel); err != nil {
			logger.Warn("Invalid unsubscribe request.", "error", err)
			return
		}
		sock.Leave(socket.Room(channel))
		logger.Debug("Dependent unsubscribed.", "channel", channel)
	})

	sock.On("disconnect", func(reasons ...any) {
		reason := ""
		if len(reasons) > 0 {
			reason, _ = reasons[0].(string)
		}
		if reason == replacedReason {
			logger.Debug("Replaced inbound connection closed.")
			return
		}
		s.mu.Lock()
		purged := s.inbound[source] == sock
		if purged {
			delete(s.inbound, source)
		}
		onPeer := s.onPeer
		s.mu.Unlock()

		logger.Debug("Inbound connection closed.", "reason", reason)
		if purged && onPeer != nil {
			onPeer(source, false)
		}
	})
}

// Publish emits a publication to every connection subscribed to channel.
func (s *Server) Publish(channel string, data, info json.RawMessage) error {
	if s.io == nil {
		return errors.New("transport server is not started")
	}
	raw, err := encode(Publication{Channel: channel, Data: data, Info: info})
	if err != nil {
		return fmt.Errorf("failed to encode publication on %s: %w", channel, err)
	}
	return s.io.To(socket.Room(channel)).Emit(EventPublish, raw)
}

// Inbound returns the live connection from the dependent alias.
func (s *Server) Inbound(alias string) (*Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sock, ok := s.inbound[alias]
	if !ok {
		return nil, false
	}
	return &Peer{alias: alias, sock: sock}, true
}

// InboundAliases lists the dependents currently connected.
func (s *Server) InboundAliases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inbound))
	for a := range s.inbound {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Close stops the server and drops every connection.
func (s *Server) Close(ctx context.Context) error {
	if s.io != nil {
		s.io.Close(nil)
	}
	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}

// Peer is an inbound connection used to call actions on a dependent.
type Peer struct {
	alias string
	sock  *socket.Socket
}

// Alias returns the dependent's alias.
func (p *Peer) Alias() string { return p.alias }

// Invoke calls action on the dependent and waits for its response or for
// ctx to end.
func (p *Peer) Invoke(ctx context.Context, action string, env Envelope) (json.RawMessage, error) {
	raw, err := encode(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call to %s: %w", action, err)
	}
	return call(ctx, func(ack ackFunc) error {
		return p.sock.Emit(action, raw, socket.Ack(ack))
	})
}
