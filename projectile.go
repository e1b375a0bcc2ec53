package main

import "strings"

const (
	ProjectileRadius = 1.0
	ProjectileDamage = 5
)

// ProjectileParams carries the fields a projectile movement intent sets
type ProjectileParams struct {
	X, Y       float64
	VX, VY     float64
	Size       float64
	TimeUpdate int64
	LifeLength int64
	Damage     int
	Charging   bool
}

// NewProjectile creates a penetrable projectile whose owner is parsed from its id
func NewProjectile(id string, p ProjectileParams) *Object {
	o := newObject(KindProjectile, id)
	o.ownerID, _ = OwnerFromID(id)
	o.penetrable = true
	o.Apply(p)
	return o
}

// Apply overwrites the kinematic and combat fields in place. The grid cell
// is reconciled by the next Grid.Update, not here. A dead projectile keeps
// its grace period and Apply reports false.
func (o *Object) Apply(p ProjectileParams) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return false
	}
	o.x, o.y = p.X, p.Y
	o.vx, o.vy = p.VX, p.VY
	o.size = p.Size
	o.timeUpdate = p.TimeUpdate
	o.lifeLength = p.LifeLength
	o.damage = p.Damage
	o.charging = p.Charging
	return true
}

// Charging reports whether the projectile is still held before release
func (o *Object) Charging() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.charging
}

// OwnerFromID extracts the owner from a "prefix_owner_suffix" projectile id
func OwnerFromID(id string) (string, bool) {
	first := strings.IndexByte(id, '_')
	if first < 0 {
		return "", false
	}
	second := strings.IndexByte(id[first+1:], '_')
	if second < 0 {
		return "", false
	}
	return id[first+1 : first+1+second], true
}
