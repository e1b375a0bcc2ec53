package main

// CheckCollision checks if two circles overlap. Touching circles do not collide.
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 < radSum*radSum
}

// Collide tests o against other at now using extrapolated positions. On a hit
// o dies and its grace period starts; other is left untouched.
func (o *Object) Collide(other *Object, now int64) bool {
	if o == other {
		return false
	}
	target := other.Snapshot()
	if target.Dead {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return false
	}
	hit := CheckCollision(
		extrapolate(o.x, o.vx, o.timeUpdate, now), extrapolate(o.y, o.vy, o.timeUpdate, now), o.size,
		target.CurX(now), target.CurY(now), target.Size,
	)
	if hit {
		o.killLocked(now)
	}
	return hit
}

// ResolveNeighbors decides, for one player and its visible neighbours, which
// neighbours hit the player and which are reported. A neighbour either
// damages the player or lands in the returned slice, never both. Dead
// neighbours stay visible until their grace period runs out.
func ResolveNeighbors(player *Object, neighbors []*Object, now int64, n HitNotifier, visible []*Object) []*Object {
	pid := player.ID()
	for _, nb := range neighbors {
		if nb == nil || nb.ID() == pid {
			continue
		}
		s := nb.Snapshot()
		if s.Dead && s.Expired(now) {
			continue
		}
		if s.Damage > 0 && s.OwnerID != pid && nb.Collide(player, now) {
			player.Hurt(s.Damage, now, n)
			continue
		}
		visible = append(visible, nb)
	}
	return visible
}
