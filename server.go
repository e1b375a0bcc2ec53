package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrNoShards = errors.New("no shard could start")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Game clients are served from anywhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Server owns the shared grid and runs one shard per worker
type Server struct {
	cfg     Config
	log     *logrus.Logger
	grid    *Grid
	stats   *Stats
	gate    *Gate
	auth    *Auth
	journal *Analytics
	shards  []*Shard
}

// NewServer builds the grid and shards. journal may be nil.
func NewServer(cfg Config, log *logrus.Logger, clock Clock, journal *Analytics) *Server {
	stats := &Stats{}
	grid := NewGrid(cfg.World.Width, cfg.World.Height, cfg.World.CellSize, stats)
	srv := &Server{
		cfg:     cfg,
		log:     log,
		grid:    grid,
		stats:   stats,
		gate:    NewGate(cfg.Limits),
		auth:    NewAuth(cfg.Auth.Secret, clock),
		journal: journal,
	}
	for i := 0; i < cfg.Shards; i++ {
		srv.shards = append(srv.shards, NewShard(i, cfg, ShardDeps{
			Grid:    grid,
			Clock:   clock,
			Stats:   stats,
			Auth:    srv.auth,
			Journal: journal,
			Log:     logrus.NewEntry(log),
		}))
	}
	return srv
}

// Grid returns the shared spatial index
func (srv *Server) Grid() *Grid { return srv.grid }

// Stats returns the process counters
func (srv *Server) Stats() *Stats { return srv.stats }

// Shards returns the workers
func (srv *Server) Shards() []*Shard { return srv.shards }

// Run binds the configured port and serves until ctx is done. With
// SO_REUSEPORT each shard binds its own listener and a bind failure stops
// only that shard; otherwise all shards share one listener.
func (srv *Server) Run(ctx context.Context) error {
	addr := srv.cfg.Addr()
	if srv.cfg.ReusePort && reusePortSupported {
		return srv.runReusePort(ctx, addr)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", ErrNoShards, addr, err)
	}
	return srv.Serve(ctx, ln)
}

func (srv *Server) runReusePort(ctx context.Context, addr string) error {
	var wg sync.WaitGroup
	started := 0
	for _, sh := range srv.shards {
		ln, err := sh.Listen(ctx, addr, true)
		if err != nil {
			srv.log.WithError(err).WithField("shard", sh.ID()).Error("shard failed to start")
			continue
		}
		started++
		wg.Add(1)
		go func(sh *Shard) {
			defer wg.Done()
			srv.serveShard(ctx, sh, ln)
		}(sh)
	}
	if started == 0 {
		return ErrNoShards
	}
	srv.log.WithFields(logrus.Fields{"addr": addr, "shards": started}).Info("listening")
	wg.Wait()
	return nil
}

// Serve runs every shard on one shared listener until ctx is done
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	if len(srv.shards) == 0 {
		ln.Close()
		return ErrNoShards
	}
	shared := &sharedListener{Listener: ln}
	var wg sync.WaitGroup
	for _, sh := range srv.shards {
		sh.setState(ShardListening)
		wg.Add(1)
		go func(sh *Shard) {
			defer wg.Done()
			srv.serveShard(ctx, sh, shared)
		}(sh)
	}
	srv.log.WithFields(logrus.Fields{"addr": ln.Addr().String(), "shards": len(srv.shards)}).Info("listening")
	wg.Wait()
	return nil
}

func (srv *Server) serveShard(ctx context.Context, sh *Shard, ln net.Listener) {
	if err := sh.Serve(ctx, ln, srv.routes(sh)); err != nil {
		srv.log.WithError(err).WithField("shard", sh.ID()).Error("shard stopped")
	}
}

// routes builds the HTTP surface of one shard
func (srv *Server) routes(sh *Shard) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(srv.stats.Snapshot())
	})
	// Any other path upgrades to the game socket
	mux.HandleFunc("/", srv.wsHandler(sh))
	return mux
}

func (srv *Server) wsHandler(sh *Shard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !srv.gate.Admit(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.gate.Release(ip)
			sh.log.WithError(err).Debug("upgrade")
			return
		}

		c := NewClient(sh, srv.gate, conn, ip, srv.cfg.Limits.MaxMessagesPerSec)
		sh.Open(c)

		go c.WritePump()
		go c.ReadPump()
	}
}

// sharedListener lets several http.Servers accept from one listener; only
// the first Close reaches the socket.
type sharedListener struct {
	net.Listener
	once sync.Once
	err  error
}

func (l *sharedListener) Close() error {
	l.once.Do(func() { l.err = l.Listener.Close() })
	return l.err
}
