package main

// Client -> Server intent types
const (
	MsgPing     = "ping"
	MsgJoin     = "join"
	MsgMovement = "movement"
)

// Server -> Client message types
const (
	MsgPong        = "pong"
	MsgBatchUpdate = "batch_update"
	MsgHit         = "hit"
)

// Object types named on the wire
const (
	ObjectTypePlayer     = "player"
	ObjectTypeProjectile = "projectile"
)

const unknownUsername = "unknown"

// Vec is an inbound {x,y} pair; both coordinates must be present
type Vec struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Get returns the coordinates and whether both were supplied
func (v *Vec) Get() (x, y float64, ok bool) {
	if v == nil || v.X == nil || v.Y == nil {
		return 0, 0, false
	}
	return *v.X, *v.Y, true
}

// Direction holds the movement key flags of a player movement intent
type Direction struct {
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Intent is one inbound text message. Every intent kind shares this shape
// so a message is decoded in a single pass; optional fields are pointers.
// Times are accepted as JSON numbers and truncated to milliseconds.
type Intent struct {
	Type string `json:"type"`

	// ping
	ClientTime *float64 `json:"clientTime"`

	// join and projectile movement
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Token      string   `json:"token"`
	Health     *int     `json:"health"`
	Size       *float64 `json:"size"`
	Position   *Vec     `json:"position"`
	TimeUpdate *float64 `json:"timeUpdate"`

	// movement
	ObjectType string     `json:"objectType"`
	Direction  *Direction `json:"direction"`
	Velocity   *Vec       `json:"velocity"`
	LifeLength *float64   `json:"lifeLength"`
	Damage     *int       `json:"damage"`
	Charging   *bool      `json:"charging"`
}

// Vec2 is an outbound {x,y} pair
type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// EntityState is one entry of a batch update. Key order is part of the
// client contract.
type EntityState struct {
	ID         string  `json:"id" msgpack:"id"`
	ObjectType string  `json:"objectType" msgpack:"objectType"`
	Username   string  `json:"username" msgpack:"username"`
	Position   Vec2    `json:"position" msgpack:"position"`
	Velocity   Vec2    `json:"velocity" msgpack:"velocity"`
	Size       float64 `json:"size" msgpack:"size"`
	Charging   bool    `json:"charging" msgpack:"charging"`
	ExpireDate int64   `json:"expireDate" msgpack:"expireDate"`
	IsDead     bool    `json:"isDead" msgpack:"isDead"`
	TimeUpdate int64   `json:"timeUpdate" msgpack:"timeUpdate"`
	NewHealth  int     `json:"newHealth" msgpack:"newHealth"`
}

// BatchUpdate is the single binary message a player receives per view tick
type BatchUpdate struct {
	MessageType string        `msgpack:"messageType"`
	Timestamp   int64         `msgpack:"timestamp"`
	Updates     []EntityState `msgpack:"updates"`
}

// PongMsg answers a ping
type PongMsg struct {
	MessageType string `json:"messageType"`
	ServerTime  int64  `json:"serverTime"`
	ClientTime  int64  `json:"clientTime"`
}

// HitMsg tells a player it was hurt, carrying its updated state
type HitMsg struct {
	MessageType string `json:"messageType"`
	EntityState
}
