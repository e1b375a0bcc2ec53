package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// FrameKind selects the WebSocket frame type of an outbound message
type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

// Peer is the transport side of one connection as a shard sees it
type Peer interface {
	ID() string
	Send(kind FrameKind, data []byte) error
	Close() error
}

// ShardState is the lifecycle of a shard
type ShardState int32

const (
	ShardIdle ShardState = iota
	ShardListening
	ShardRunning
	ShardShuttingDown
)

func (s ShardState) String() string {
	switch s {
	case ShardIdle:
		return "idle"
	case ShardListening:
		return "listening"
	case ShardRunning:
		return "running"
	case ShardShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

const (
	inboxSize       = 1024
	shutdownTimeout = 5 * time.Second
)

type eventKind uint8

const (
	evOpen eventKind = iota + 1
	evMessage
	evClose
)

type event struct {
	kind eventKind
	peer Peer
	data []byte
}

// client is a shard's view of one connection. player is nil until a join
// succeeds and again after the player dies.
type client struct {
	shard  *Shard
	peer   Peer
	player *Object
}

// NotifyHit sends the hurt player's new state to its own connection
func (c *client) NotifyHit(state ObjectState, now int64) {
	c.shard.notifyHit(c, state, now)
}

// ShardDeps are the collaborators a shard shares with the rest of the process
type ShardDeps struct {
	Grid    *Grid
	Clock   Clock
	Stats   *Stats
	Auth    *Auth
	Journal *Analytics
	Log     *logrus.Entry
}

// Shard is one worker. It owns its connections and the projectiles its
// clients created, and runs every handler and tick on a single goroutine.
// Other shards see its entities only through the shared grid.
type Shard struct {
	id      int
	cfg     Config
	grid    *Grid
	clock   Clock
	stats   *Stats
	auth    *Auth
	journal *Analytics
	log     *logrus.Entry

	state atomic.Int32
	inbox chan event
	done  chan struct{}

	// Owned by the loop goroutine
	clients map[Peer]*client
	objects map[string]*Object
	fallen  map[*Object]struct{} // dead players inside their grace period

	searchBuf  []*Object
	visibleBuf []*Object
}

// NewShard creates an idle shard
func NewShard(id int, cfg Config, deps ShardDeps) *Shard {
	clk := deps.Clock
	if clk == nil {
		clk = RealClock{}
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Shard{
		id:      id,
		cfg:     cfg,
		grid:    deps.Grid,
		clock:   clk,
		stats:   deps.Stats,
		auth:    deps.Auth,
		journal: deps.Journal,
		log:     log.WithField("shard", id),
		inbox:   make(chan event, inboxSize),
		done:    make(chan struct{}),
		clients: make(map[Peer]*client),
		objects: make(map[string]*Object),
		fallen:  make(map[*Object]struct{}),
	}
}

// ID returns the shard index
func (s *Shard) ID() int { return s.id }

// State returns the current lifecycle state
func (s *Shard) State() ShardState {
	return ShardState(s.state.Load())
}

func (s *Shard) setState(st ShardState) {
	s.state.Store(int32(st))
	s.log.WithField("state", st).Debug("shard state")
}

// Open hands a new connection to the shard loop
func (s *Shard) Open(p Peer) { s.enqueue(event{kind: evOpen, peer: p}) }

// Message hands one inbound message to the shard loop
func (s *Shard) Message(p Peer, data []byte) { s.enqueue(event{kind: evMessage, peer: p, data: data}) }

// Close tells the shard loop the connection is gone
func (s *Shard) Close(p Peer) { s.enqueue(event{kind: evClose, peer: p}) }

// enqueue blocks until the loop accepts the event or has stopped. Blocking
// pushes back on the sending connection's read pump only.
func (s *Shard) enqueue(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Listen binds the shard's listener and moves it to Listening
func (s *Shard) Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	ln, err := listenTCP(ctx, addr, reusePort)
	if err != nil {
		return nil, fmt.Errorf("shard %d listen %s: %w", s.id, addr, err)
	}
	s.setState(ShardListening)
	return ln, nil
}

// Serve accepts connections on ln with handler h and runs the shard loop
// until ctx is cancelled or the listener fails.
func (s *Shard) Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(loopDone)
	}()

	srv := &http.Server{Handler: h}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			err = nil
		}
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		s.log.WithError(serr).Warn("http shutdown")
	}
	<-loopDone
	return err
}

// Run is the shard event loop. Inbound events and both ticks execute here,
// never concurrently with each other.
func (s *Shard) Run(ctx context.Context) {
	s.setState(ShardRunning)
	s.log.Info("shard running")

	viewTicker := time.NewTicker(s.cfg.Tick.PlayerView)
	defer viewTicker.Stop()
	objTicker := time.NewTicker(s.cfg.Tick.Objects)
	defer objTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev := <-s.inbox:
			s.dispatch(ev)
		case <-viewTicker.C:
			s.tickPlayers(nowMs(s.clock))
		case <-objTicker.C:
			s.tickObjects(nowMs(s.clock))
		}
	}
}

func (s *Shard) dispatch(ev event) {
	defer s.recoverEntity("event", ev.peer.ID())
	switch ev.kind {
	case evOpen:
		s.handleOpen(ev.peer)
	case evMessage:
		s.handleMessage(ev.peer, ev.data)
	case evClose:
		s.handleClose(ev.peer)
	}
}

// recoverEntity keeps one entity's failure from aborting the whole tick
func (s *Shard) recoverEntity(stage, id string) {
	if r := recover(); r != nil {
		s.log.WithFields(logrus.Fields{"stage": stage, "id": id, "panic": r}).Error("recovered")
	}
}

func (s *Shard) shutdown() {
	s.setState(ShardShuttingDown)
	close(s.done)
	for p, c := range s.clients {
		if c.player != nil {
			s.destroy(c.player)
		}
		p.Close()
		s.stats.Disconnected()
	}
	clear(s.clients)
	for id, o := range s.objects {
		s.destroy(o)
		delete(s.objects, id)
	}
	for o := range s.fallen {
		s.destroy(o)
		delete(s.fallen, o)
	}
	s.log.Info("shard stopped")
}

// destroy removes an entity from the grid and drops its count. Callers
// remove it from their own registry in the same step.
func (s *Shard) destroy(o *Object) {
	s.grid.Remove(o)
	s.stats.ObjectsDelta(-1)
}

// tickPlayers sends each connected player its view of the world
func (s *Shard) tickPlayers(now int64) {
	for _, c := range s.clients {
		if c.player == nil {
			continue
		}
		s.viewPlayer(c, now)
	}
}

func (s *Shard) viewPlayer(c *client, now int64) {
	pl := c.player
	defer s.recoverEntity("view", pl.ID())

	if pl.IsDead() {
		// Out of the view registry; it stays in the grid for others until
		// its grace period runs out.
		c.player = nil
		s.fallen[pl] = struct{}{}
		return
	}
	if pl.Expired(now) {
		c.player = nil
		s.destroy(pl)
		return
	}

	s.grid.Update(pl, now)
	cx, cy := pl.CurX(now), pl.CurY(now)
	hw, hh := s.cfg.View.HalfWidth, s.cfg.View.HalfHeight

	s.searchBuf = s.grid.SearchBuf(cy-hh, cy+hh, cx-hw, cx+hw, s.searchBuf[:0])
	s.visibleBuf = ResolveNeighbors(pl, s.searchBuf, now, c, s.visibleBuf[:0])
	defer func() {
		clear(s.searchBuf)
		clear(s.visibleBuf)
	}()

	self := pl.Snapshot()
	if self.Dead {
		s.journal.Track(EvtDeath, self.ID, self.Username, s.id, "")
		s.log.WithField("player", self.ID).Info("player died")
	}

	data, err := EncodeBatch(now, self, s.visibleBuf)
	if err != nil {
		s.log.WithError(err).WithField("player", pl.ID()).Warn("encode batch")
		return
	}
	s.send(c, FrameBinary, data)
}

// tickObjects ages projectiles, keeps their cells current and clears out
// dead players whose grace period is over.
func (s *Shard) tickObjects(now int64) {
	for id, o := range s.objects {
		if o == nil {
			delete(s.objects, id)
			continue
		}
		s.maintain(id, o, now)
	}
	for o := range s.fallen {
		if o.Expired(now) {
			s.destroy(o)
			delete(s.fallen, o)
		}
	}
}

func (s *Shard) maintain(id string, o *Object, now int64) {
	defer s.recoverEntity("objects", id)
	if o.IsDead() || o.Expired(now) {
		s.destroy(o)
		delete(s.objects, id)
		return
	}
	s.grid.Update(o, now)
}

// send delivers to one connection; a failure affects that recipient only
func (s *Shard) send(c *client, kind FrameKind, data []byte) {
	if err := c.peer.Send(kind, data); err != nil {
		s.stats.SendFailed()
		s.log.WithError(err).WithField("peer", c.peer.ID()).Debug("send")
		return
	}
	s.stats.Sent()
}

func (s *Shard) notifyHit(c *client, state ObjectState, now int64) {
	data, err := EncodeHit(state, now)
	if err != nil {
		s.log.WithError(err).WithField("player", state.ID).Warn("encode hit")
		return
	}
	s.send(c, FrameText, data)
	s.journal.Track(EvtHit, state.ID, state.Username, s.id, fmt.Sprintf(`{"health":%d}`, state.Health))
}

// Counts reports registry sizes; only meaningful from the loop goroutine or
// after the loop has stopped.
func (s *Shard) Counts() (clients, players, objects, fallen int) {
	for _, c := range s.clients {
		if c.player != nil {
			players++
		}
	}
	return len(s.clients), players, len(s.objects), len(s.fallen)
}
