package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	hits []ObjectState
}

func (r *recordingNotifier) NotifyHit(state ObjectState, now int64) {
	r.hits = append(r.hits, state)
}

func newTestPlayer(id string, x, y float64, at int64) *Object {
	return NewPlayer(PlayerParams{
		ID:         id,
		Username:   id,
		Health:     PlayerMaxHP,
		Size:       PlayerRadius,
		X:          x,
		Y:          y,
		TimeUpdate: at,
	})
}

func TestExtrapolationIsDeterministic(t *testing.T) {
	p := newTestPlayer("p1", 100, 100, 1000)
	p.Steer(Direction{Right: true}, PlayerSpeed, 1000)

	assert.Equal(t, 300.0, p.CurX(2000))
	assert.Equal(t, p.CurX(2000), p.CurX(2000))
	assert.Equal(t, 100.0, p.CurY(2000))
	// Extrapolation also runs backwards
	assert.Equal(t, 0.0, p.CurX(500))
}

func TestSteerCommitsBeforeChangingVelocity(t *testing.T) {
	p := newTestPlayer("p1", 0, 0, 0)
	p.Steer(Direction{Right: true}, 100, 0)
	p.Steer(Direction{Down: true}, 100, 1000)

	x, y := p.Position()
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 0.0, y)
	assert.Equal(t, 100.0, p.CurX(2000))
	assert.Equal(t, 100.0, p.CurY(2000))
}

func TestSteerIgnoredWhenDead(t *testing.T) {
	p := newTestPlayer("p1", 0, 0, 0)
	p.Hurt(PlayerMaxHP, 0, nil)
	p.Steer(Direction{Right: true}, 100, 10)

	assert.Equal(t, 0.0, p.CurX(1000))
}

func TestDirectionVelocity(t *testing.T) {
	tests := []struct {
		name   string
		dir    Direction
		vx, vy float64
	}{
		{"idle", Direction{}, 0, 0},
		{"right", Direction{Right: true}, 200, 0},
		{"left", Direction{Left: true}, -200, 0},
		{"up is negative y", Direction{Up: true}, 0, -200},
		{"down", Direction{Down: true}, 0, 200},
		{"opposites cancel", Direction{Left: true, Right: true}, 0, 0},
		{"diagonal", Direction{Right: true, Down: true}, 200 / Sqrt2, 200 / Sqrt2},
		{"up right", Direction{Up: true, Right: true}, 200 / Sqrt2, -200 / Sqrt2},
		{"diagonal with cancelled axis", Direction{Up: true, Down: true, Left: true}, -200, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vx, vy := DirectionVelocity(tt.dir, PlayerSpeed)
			assert.InDelta(t, tt.vx, vx, 1e-9)
			assert.InDelta(t, tt.vy, vy, 1e-9)
		})
	}

	vx, vy := DirectionVelocity(Direction{Right: true, Down: true}, PlayerSpeed)
	assert.InDelta(t, 141.42, vx, 0.01)
	assert.InDelta(t, PlayerSpeed, math.Hypot(vx, vy), 1e-9)
}

func TestHurtNeverIncreasesHealth(t *testing.T) {
	p := newTestPlayer("p1", 0, 0, 0)
	n := &recordingNotifier{}

	assert.False(t, p.Hurt(40, 10, n))
	assert.Equal(t, 60, p.Health())

	assert.False(t, p.Hurt(-25, 20, n))
	assert.Equal(t, 60, p.Health())

	assert.True(t, p.Hurt(500, 30, n))
	assert.Equal(t, 0, p.Health())
	assert.True(t, p.IsDead())

	// Further hits are reported but never kill twice
	assert.False(t, p.Hurt(5, 40, n))
	assert.True(t, p.IsDead())
	require.Len(t, n.hits, 4)
	assert.Equal(t, 60, n.hits[0].Health)
	assert.True(t, n.hits[2].Dead)
}

func TestDeathStartsGracePeriod(t *testing.T) {
	p := newTestPlayer("p1", 0, 0, 0)
	p.Hurt(PlayerMaxHP, 5000, nil)

	s := p.Snapshot()
	assert.Equal(t, int64(GracePeriodMs), s.LifeLength)
	assert.Equal(t, int64(5000), s.TimeUpdate)
	assert.False(t, p.Expired(5999))
	assert.False(t, p.Expired(6000))
	assert.True(t, p.Expired(6001))
}

func TestDeathKeepsExtrapolatedPosition(t *testing.T) {
	p := newTestPlayer("p1", 110, 100, 0)
	p.Steer(Direction{Right: true}, PlayerSpeed, 0)
	before := p.CurX(400)

	require.True(t, p.Hurt(PlayerMaxHP, 400, nil))

	assert.Equal(t, 190.0, before)
	assert.Equal(t, before, p.CurX(400))
	x, _ := p.Position()
	assert.Equal(t, 190.0, x)
}

func TestApplyIgnoredWhenDead(t *testing.T) {
	shot := NewProjectile("shot_p2_1", ProjectileParams{
		X: 0, Y: 0, Size: 1, TimeUpdate: 0, LifeLength: LifeForever, Damage: 5,
	})
	shot.Hurt(1, 100, nil)

	applied := shot.Apply(ProjectileParams{X: 50, Size: 1, TimeUpdate: 0, LifeLength: LifeForever, Damage: 9})

	assert.False(t, applied)
	s := shot.Snapshot()
	assert.Equal(t, 0.0, s.X)
	assert.Equal(t, int64(100), s.TimeUpdate)
	assert.Equal(t, int64(GracePeriodMs), s.LifeLength)
	assert.Equal(t, 5, s.Damage)
}

func TestCommitAgesLifetime(t *testing.T) {
	o := NewProjectile("shot_p1_1", ProjectileParams{
		X: 0, Y: 0, VX: 100, VY: 0, Size: 1, TimeUpdate: 0, LifeLength: 1000, Damage: 5,
	})
	o.Commit(300)

	s := o.Snapshot()
	assert.Equal(t, 30.0, s.X)
	assert.Equal(t, int64(300), s.TimeUpdate)
	assert.Equal(t, int64(700), s.LifeLength)
	assert.False(t, o.Expired(1000))
	assert.True(t, o.Expired(1001))
}

func TestForeverLifetimeDoesNotAgeOrOverflow(t *testing.T) {
	p := newTestPlayer("p1", 0, 0, 0)
	p.Commit(1_700_000_000_000)

	s := p.Snapshot()
	assert.Equal(t, LifeForever, s.LifeLength)
	assert.False(t, s.Expired(math.MaxInt64/2))
	assert.Equal(t, int64(math.MaxInt64), s.ExpireDate(math.MaxInt64-1))
	assert.Equal(t, 1_700_000_000_000+LifeForever, s.ExpireDate(1_700_000_000_000))
}

func TestNewObjectStartsOutsideGrid(t *testing.T) {
	p := newTestPlayer("p1", 10, 10, 0)
	row, col := p.cell()
	assert.Equal(t, -1, row)
	assert.Equal(t, -1, col)
	assert.Equal(t, KindPlayer, p.Kind())
	assert.Equal(t, "player", p.Kind().String())
}

func TestOwnerFromID(t *testing.T) {
	tests := []struct {
		id    string
		owner string
		ok    bool
	}{
		{"shot_alice_17", "alice", true},
		{"shot_alice_17_extra", "alice", true},
		{"shot_alice", "", false},
		{"plain", "", false},
		{"a__b", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			owner, ok := OwnerFromID(tt.id)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.ok, ok)
		})
	}

	o := NewProjectile("shot_alice_17", ProjectileParams{Size: 1, LifeLength: LifeForever})
	assert.Equal(t, "alice", o.OwnerID())
	assert.True(t, o.Snapshot().Penetrable)
}
