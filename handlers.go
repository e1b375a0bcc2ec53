package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrOutOfBounds rejects a join whose position lies outside the world
var ErrOutOfBounds = errors.New("position out of bounds")

func (s *Shard) handleOpen(p Peer) {
	s.clients[p] = &client{shard: s, peer: p}
	s.stats.Connected()
	s.log.WithField("peer", p.ID()).Debug("connection opened")
}

func (s *Shard) handleClose(p Peer) {
	c, ok := s.clients[p]
	if !ok {
		return
	}
	delete(s.clients, p)
	s.stats.Disconnected()
	if c.player != nil {
		s.destroy(c.player)
		s.journal.Track(EvtLeave, c.player.ID(), c.player.Username(), s.id, "")
		c.player = nil
	}
	s.log.WithField("peer", p.ID()).Debug("connection closed")
}

// handleMessage decodes one intent and applies it. Malformed or unknown
// input is dropped; the connection stays open.
func (s *Shard) handleMessage(p Peer, data []byte) {
	c, ok := s.clients[p]
	if !ok {
		return
	}
	in, err := DecodeIntent(data)
	if err != nil {
		s.log.WithError(err).WithField("peer", p.ID()).Debug("dropped message")
		return
	}
	s.stats.Processed()

	now := nowMs(s.clock)
	switch in.Type {
	case MsgPing:
		s.handlePing(c, in, now)
	case MsgJoin:
		if err := s.handleJoin(c, in, now); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"peer": p.ID(), "id": in.ID}).Info("join rejected")
		}
	case MsgMovement:
		s.handleMovement(c, in, now)
	}
}

func (s *Shard) handlePing(c *client, in Intent, now int64) {
	data, err := EncodePong(now, msOr(in.ClientTime, 0))
	if err != nil {
		s.log.WithError(err).Warn("encode pong")
		return
	}
	s.send(c, FrameText, data)
}

// handleJoin creates the connection's player. A second join on the same
// connection replaces the previous player.
func (s *Shard) handleJoin(c *client, in Intent, now int64) error {
	if err := s.auth.VerifyJoin(in.Token, in.ID); err != nil {
		return err
	}

	var x, y float64
	if px, py, ok := in.Position.Get(); ok {
		x, y = px, py
	}
	if !(x >= 0 && x <= float64(s.cfg.World.Width) && y >= 0 && y <= float64(s.cfg.World.Height)) {
		return fmt.Errorf("join at (%g, %g): %w", x, y, ErrOutOfBounds)
	}

	health := PlayerMaxHP
	if in.Health != nil {
		health = max(*in.Health, 0)
	}
	size := PlayerRadius
	if in.Size != nil {
		size = *in.Size
	}

	if old := c.player; old != nil {
		s.destroy(old)
		c.player = nil
	}

	pl := NewPlayer(PlayerParams{
		ID:         in.ID,
		Username:   in.Username,
		Health:     health,
		Size:       size,
		X:          x,
		Y:          y,
		TimeUpdate: msOr(in.TimeUpdate, now),
	})
	c.player = pl
	s.grid.Insert(pl)
	s.stats.ObjectsDelta(1)
	s.journal.Track(EvtJoin, pl.ID(), in.Username, s.id, "")

	s.log.WithFields(logrus.Fields{
		"player":   in.ID,
		"username": in.Username,
		"x":        x,
		"y":        y,
	}).Info("player joined")
	return nil
}

func (s *Shard) handleMovement(c *client, in Intent, now int64) {
	switch in.ObjectType {
	case ObjectTypePlayer:
		pl := c.player
		if pl == nil {
			return
		}
		at := msOr(in.TimeUpdate, now)
		if pl.Steer(*in.Direction, s.cfg.PlayerSpeed, at) {
			s.grid.Update(pl, at)
		}
	case ObjectTypeProjectile:
		s.upsertProjectile(in, now)
	}
}

// upsertProjectile creates the projectile on first sight of its id and
// updates it in place afterwards.
func (s *Shard) upsertProjectile(in Intent, now int64) {
	x, y, _ := in.Position.Get()
	vx, vy, _ := in.Velocity.Get()
	params := ProjectileParams{
		X:          x,
		Y:          y,
		VX:         vx,
		VY:         vy,
		Size:       ProjectileRadius,
		TimeUpdate: msOr(in.TimeUpdate, now),
		LifeLength: msOr(in.LifeLength, LifeForever),
		Damage:     ProjectileDamage,
	}
	if in.Size != nil {
		params.Size = *in.Size
	}
	if in.Damage != nil {
		params.Damage = *in.Damage
	}
	if in.Charging != nil {
		params.Charging = *in.Charging
	}

	if o, ok := s.objects[in.ID]; ok {
		// A projectile killed by a hit keeps its grace period
		o.Apply(params)
		return
	}
	o := NewProjectile(in.ID, params)
	s.objects[in.ID] = o
	s.grid.Insert(o)
	s.stats.ObjectsDelta(1)
}
