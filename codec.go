package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownIntent = errors.New("unknown intent type")
	ErrMissingField  = errors.New("missing required field")
)

// DecodeIntent parses one inbound text message and checks the fields its
// type requires. Optional fields are left nil for the handler to default.
func DecodeIntent(raw []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode intent: %w", err)
	}

	switch in.Type {
	case MsgPing:
		return in, nil
	case MsgJoin:
		if in.ID == "" {
			return in, fmt.Errorf("join: id: %w", ErrMissingField)
		}
		return in, nil
	case MsgMovement:
		return in, validateMovement(in)
	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Type)
	}
}

func validateMovement(in Intent) error {
	switch in.ObjectType {
	case ObjectTypePlayer:
		if in.Direction == nil {
			return fmt.Errorf("movement: direction: %w", ErrMissingField)
		}
		if in.TimeUpdate == nil {
			return fmt.Errorf("movement: timeUpdate: %w", ErrMissingField)
		}
	case ObjectTypeProjectile:
		if in.ID == "" {
			return fmt.Errorf("movement: id: %w", ErrMissingField)
		}
		if _, _, ok := in.Position.Get(); !ok {
			return fmt.Errorf("movement: position: %w", ErrMissingField)
		}
		if _, _, ok := in.Velocity.Get(); !ok {
			return fmt.Errorf("movement: velocity: %w", ErrMissingField)
		}
	default:
		return fmt.Errorf("movement: objectType %q: %w", in.ObjectType, ErrUnknownIntent)
	}
	return nil
}

// msOr truncates an optional JSON time to milliseconds, or returns def
func msOr(v *float64, def int64) int64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	f := math.Trunc(*v)
	if f >= float64(LifeForever) {
		return LifeForever
	}
	if f <= -float64(LifeForever) {
		return -LifeForever
	}
	return int64(f)
}

// EntityStateOf renders an entity for the wire as seen at now
func EntityStateOf(s ObjectState, now int64) EntityState {
	username := s.Username
	if username == "" {
		username = unknownUsername
	}
	return EntityState{
		ID:         s.ID,
		ObjectType: s.Kind.String(),
		Username:   username,
		Position:   Vec2{X: s.CurX(now), Y: s.CurY(now)},
		Velocity:   Vec2{X: s.VX, Y: s.VY},
		Size:       s.Size,
		Charging:   s.Charging,
		ExpireDate: s.ExpireDate(now),
		IsDead:     s.Dead,
		TimeUpdate: s.TimeUpdate,
		NewHealth:  s.Health,
	}
}

// EncodeBatch builds the binary batch update for one player: its own state
// first, then every visible neighbour.
func EncodeBatch(now int64, self ObjectState, neighbors []*Object) ([]byte, error) {
	batch := BatchUpdate{
		MessageType: MsgBatchUpdate,
		Timestamp:   now,
		Updates:     make([]EntityState, 0, len(neighbors)+1),
	}
	batch.Updates = append(batch.Updates, EntityStateOf(self, now))
	for _, nb := range neighbors {
		batch.Updates = append(batch.Updates, EntityStateOf(nb.Snapshot(), now))
	}
	data, err := msgpack.Marshal(&batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return data, nil
}

// EncodePong builds the text reply to a ping
func EncodePong(serverTime, clientTime int64) ([]byte, error) {
	return json.Marshal(PongMsg{
		MessageType: MsgPong,
		ServerTime:  serverTime,
		ClientTime:  clientTime,
	})
}

// EncodeHit builds the text notification sent to a hurt player
func EncodeHit(s ObjectState, now int64) ([]byte, error) {
	return json.Marshal(HitMsg{
		MessageType: MsgHit,
		EntityState: EntityStateOf(s, now),
	})
}
