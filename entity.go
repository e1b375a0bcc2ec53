package main

import (
	"math"
	"sync"
)

const (
	// GracePeriodMs keeps a dead entity visible so clients can render the death.
	GracePeriodMs = 1000

	// LifeForever is the "never expires" lifetime. It leaves headroom so that
	// adding a wall-clock timestamp cannot overflow int64.
	LifeForever int64 = 1 << 62
)

// ObjectKind tags the entity variant
type ObjectKind uint8

const (
	KindPlayer ObjectKind = iota + 1
	KindProjectile
)

func (k ObjectKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	default:
		return "unknown"
	}
}

// Object is a player or a projectile living in the shared grid.
//
// The owning shard mutates it; other shards read it through the locked
// accessors and may mark it dead through Collide. The grid alone writes
// row and col. No method holds two object locks at once.
type Object struct {
	kind    ObjectKind
	id      string
	ownerID string // projectiles only, parsed from id

	mu         sync.RWMutex
	username   string // players only
	charging   bool   // projectiles only
	x, y       float64
	vx, vy     float64
	size       float64
	health     int
	damage     int
	timeUpdate int64
	lifeLength int64
	dead       bool
	penetrable bool
	row, col   int
}

// ObjectState is a consistent copy of an Object taken under its lock
type ObjectState struct {
	Kind       ObjectKind
	ID         string
	OwnerID    string
	Username   string
	Charging   bool
	X, Y       float64
	VX, VY     float64
	Size       float64
	Health     int
	Damage     int
	TimeUpdate int64
	LifeLength int64
	Dead       bool
	Penetrable bool
}

// extrapolate advances a coordinate by velocity over the elapsed milliseconds
func extrapolate(pos, v float64, since, t int64) float64 {
	return pos + v*float64(t-since)/1000
}

// CurX returns the extrapolated X at epoch millisecond t
func (s ObjectState) CurX(t int64) float64 { return extrapolate(s.X, s.VX, s.TimeUpdate, t) }

// CurY returns the extrapolated Y at epoch millisecond t
func (s ObjectState) CurY(t int64) float64 { return extrapolate(s.Y, s.VY, s.TimeUpdate, t) }

// Expired reports whether the lifetime has elapsed at now
func (s ObjectState) Expired(now int64) bool {
	return now-s.TimeUpdate > s.LifeLength
}

// ExpireDate is the epoch millisecond at which the entity expires, seen from now
func (s ObjectState) ExpireDate(now int64) int64 {
	return addSat(now, s.LifeLength)
}

func newObject(kind ObjectKind, id string) *Object {
	return &Object{
		kind:       kind,
		id:         id,
		size:       1,
		lifeLength: LifeForever,
		row:        -1,
		col:        -1,
	}
}

// ID returns the entity id
func (o *Object) ID() string { return o.id }

// Kind returns the entity variant
func (o *Object) Kind() ObjectKind { return o.kind }

// OwnerID returns the player id embedded in a projectile id, or ""
func (o *Object) OwnerID() string { return o.ownerID }

// Snapshot copies the entity state under its read lock
func (o *Object) Snapshot() ObjectState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stateLocked()
}

func (o *Object) stateLocked() ObjectState {
	return ObjectState{
		Kind:       o.kind,
		ID:         o.id,
		OwnerID:    o.ownerID,
		Username:   o.username,
		Charging:   o.charging,
		X:          o.x,
		Y:          o.y,
		VX:         o.vx,
		VY:         o.vy,
		Size:       o.size,
		Health:     o.health,
		Damage:     o.damage,
		TimeUpdate: o.timeUpdate,
		LifeLength: o.lifeLength,
		Dead:       o.dead,
		Penetrable: o.penetrable,
	}
}

// CurX returns the extrapolated X at epoch millisecond t
func (o *Object) CurX(t int64) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return extrapolate(o.x, o.vx, o.timeUpdate, t)
}

// CurY returns the extrapolated Y at epoch millisecond t
func (o *Object) CurY(t int64) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return extrapolate(o.y, o.vy, o.timeUpdate, t)
}

// Expired reports now - time_update > life_length
func (o *Object) Expired(now int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return now-o.timeUpdate > o.lifeLength
}

// IsDead reports whether the entity has died
func (o *Object) IsDead() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dead
}

// Health returns the remaining health
func (o *Object) Health() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health
}

// Damage returns the damage inflicted on contact
func (o *Object) Damage() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.damage
}

// Position returns the stored (committed) position
func (o *Object) Position() (x, y float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.x, o.y
}

// Commit writes the extrapolated position at now into x,y, ages the
// lifetime by the elapsed time and rebases time_update to now.
func (o *Object) Commit(now int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commitLocked(now)
}

func (o *Object) commitLocked(now int64) {
	o.x = extrapolate(o.x, o.vx, o.timeUpdate, now)
	o.y = extrapolate(o.y, o.vy, o.timeUpdate, now)
	if o.lifeLength != LifeForever {
		o.lifeLength -= now - o.timeUpdate
	}
	o.timeUpdate = now
}

// killLocked is the single death transition: dead, with a fresh grace period.
// The body stays where it was at now.
func (o *Object) killLocked(now int64) {
	o.commitLocked(now)
	o.dead = true
	o.lifeLength = GracePeriodMs
	o.timeUpdate = now
}

func (o *Object) cell() (row, col int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.row, o.col
}

func (o *Object) setCell(row, col int) {
	o.mu.Lock()
	o.row, o.col = row, col
	o.mu.Unlock()
}

// addSat adds two int64 values, saturating instead of wrapping
func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}
