package main

// HitNotifier delivers a "hit" notification to the client of a hurt player
type HitNotifier interface {
	NotifyHit(state ObjectState, now int64)
}

// Hurt applies damage, floored at zero health. The first time health reaches
// zero the entity dies and its grace period starts. The notifier is told
// about every hit, fatal or not. Returns true when this call killed it.
func (o *Object) Hurt(damage int, now int64, n HitNotifier) bool {
	if damage < 0 {
		damage = 0
	}

	o.mu.Lock()
	o.health -= damage
	if o.health < 0 {
		o.health = 0
	}
	died := false
	if o.health == 0 && !o.dead {
		o.killLocked(now)
		died = true
	}
	state := o.stateLocked()
	o.mu.Unlock()

	if n != nil {
		n.NotifyHit(state, now)
	}
	return died
}
