package main

const (
	PlayerMaxHP  = 100
	PlayerRadius = 20.0
)

// PlayerParams carries the fields a join intent may set
type PlayerParams struct {
	ID         string
	Username   string
	Health     int
	Size       float64
	X, Y       float64
	TimeUpdate int64
}

// NewPlayer creates a player that never expires on its own
func NewPlayer(p PlayerParams) *Object {
	o := newObject(KindPlayer, p.ID)
	o.username = p.Username
	o.health = p.Health
	o.size = p.Size
	o.x = p.X
	o.y = p.Y
	o.timeUpdate = p.TimeUpdate
	o.lifeLength = LifeForever
	return o
}

// Username returns the player's display name
func (o *Object) Username() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.username
}

// DirectionVelocity turns direction flags into a velocity of magnitude speed.
// Screen coordinates: up is -Y. Opposite flags cancel; a diagonal is scaled by 1/√2.
func DirectionVelocity(d Direction, speed float64) (vx, vy float64) {
	if d.Right {
		vx += speed
	}
	if d.Left {
		vx -= speed
	}
	if d.Down {
		vy += speed
	}
	if d.Up {
		vy -= speed
	}
	if vx != 0 && vy != 0 {
		vx /= Sqrt2
		vy /= Sqrt2
	}
	return vx, vy
}

// Steer rebases the player at time `at` and gives it a new velocity.
// The extrapolated position at `at` is committed first so that changing
// velocity does not rewind the trajectory. A dead player is left alone and
// Steer reports false.
func (o *Object) Steer(d Direction, speed float64, at int64) bool {
	vx, vy := DirectionVelocity(d, speed)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return false
	}
	o.commitLocked(at)
	o.vx, o.vy = vx, vy
	return true
}
