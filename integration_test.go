package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer runs a Server on a loopback port and returns its address.
// The server is stopped when the test ends.
func startTestServer(t *testing.T, tweak func(*Config)) (*Server, string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Shards = 2
	cfg.Tick.PlayerView = 10 * time.Millisecond
	cfg.Tick.Objects = 20 * time.Millisecond
	if tweak != nil {
		tweak(&cfg)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.WarnLevel)

	srv := NewServer(cfg, log, RealClock{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, ln.Addr().String()
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	require.NoError(t, err, "dial WS")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func join(t *testing.T, conn *websocket.Conn, id string, x, y float64) {
	t.Helper()
	sendJSON(t, conn, map[string]interface{}{
		"type":     "join",
		"id":       id,
		"username": id,
		"position": map[string]float64{"x": x, "y": y},
	})
}

// readUntil reads frames until match accepts one or the deadline passes
func readUntil(t *testing.T, conn *websocket.Conn, match func(msgType int, raw []byte) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)
	for {
		msgType, raw, err := conn.ReadMessage()
		require.NoError(t, err, "read WS")
		if match(msgType, raw) {
			return
		}
	}
}

// readBatchWith waits for a batch update whose ids satisfy want
func readBatchWith(t *testing.T, conn *websocket.Conn, want func(ids []string) bool) BatchUpdate {
	t.Helper()
	var got BatchUpdate
	readUntil(t, conn, func(msgType int, raw []byte) bool {
		if msgType != websocket.BinaryMessage {
			return false
		}
		var b BatchUpdate
		require.NoError(t, msgpack.Unmarshal(raw, &b))
		ids := make([]string, 0, len(b.Updates))
		for _, u := range b.Updates {
			ids = append(ids, u.ID)
		}
		if want(ids) {
			got = b
			return true
		}
		return false
	})
	return got
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ---------- tests ----------

func TestPingPong(t *testing.T) {
	_, addr := startTestServer(t, nil)
	conn := dialWS(t, addr)

	sendJSON(t, conn, map[string]interface{}{"type": "ping", "clientTime": 42})

	readUntil(t, conn, func(msgType int, raw []byte) bool {
		require.Equal(t, websocket.TextMessage, msgType)
		var pong PongMsg
		require.NoError(t, json.Unmarshal(raw, &pong))
		assert.Equal(t, MsgPong, pong.MessageType)
		assert.Equal(t, int64(42), pong.ClientTime)
		assert.InDelta(t, time.Now().UnixMilli(), pong.ServerTime, 5000)
		return true
	})
}

func TestPlayersSeeEachOther(t *testing.T) {
	_, addr := startTestServer(t, nil)
	alice := dialWS(t, addr)
	bob := dialWS(t, addr)

	join(t, alice, "alice", 300, 300)
	join(t, bob, "bob", 400, 300)

	b := readBatchWith(t, alice, func(ids []string) bool { return contains(ids, "bob") })
	assert.Equal(t, "alice", b.Updates[0].ID, "own state comes first")
	assert.Equal(t, MsgBatchUpdate, b.MessageType)

	b = readBatchWith(t, bob, func(ids []string) bool { return contains(ids, "alice") })
	assert.Equal(t, "bob", b.Updates[0].ID)
}

func TestProjectileHitNotifiesTarget(t *testing.T) {
	_, addr := startTestServer(t, nil)
	alice := dialWS(t, addr)
	bob := dialWS(t, addr)

	join(t, alice, "alice", 500, 500)
	join(t, bob, "bob", 1200, 1200)
	readBatchWith(t, alice, func(ids []string) bool { return len(ids) > 0 })

	sendJSON(t, bob, map[string]interface{}{
		"type":       "movement",
		"objectType": "projectile",
		"id":         "shot_bob_1",
		"position":   map[string]float64{"x": 500, "y": 500},
		"velocity":   map[string]float64{"x": 0, "y": 0},
		"timeUpdate": time.Now().UnixMilli(),
		"lifeLength": 5000,
	})

	readUntil(t, alice, func(msgType int, raw []byte) bool {
		if msgType != websocket.TextMessage {
			return false
		}
		var hit map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &hit))
		assert.Equal(t, MsgHit, hit["messageType"])
		assert.Equal(t, "alice", hit["id"])
		assert.Equal(t, float64(PlayerMaxHP-ProjectileDamage), hit["newHealth"])
		return true
	})
}

func TestMovementMovesPlayer(t *testing.T) {
	_, addr := startTestServer(t, nil)
	conn := dialWS(t, addr)
	join(t, conn, "alice", 100, 100)
	readBatchWith(t, conn, func(ids []string) bool { return contains(ids, "alice") })

	sendJSON(t, conn, map[string]interface{}{
		"type":       "movement",
		"objectType": "player",
		"direction":  map[string]bool{"right": true},
		"timeUpdate": time.Now().UnixMilli(),
	})

	readUntil(t, conn, func(msgType int, raw []byte) bool {
		if msgType != websocket.BinaryMessage {
			return false
		}
		var b BatchUpdate
		require.NoError(t, msgpack.Unmarshal(raw, &b))
		return b.Updates[0].Velocity.X == PlayerSpeed && b.Updates[0].Position.X > 100
	})
}

func TestHealthz(t *testing.T) {
	_, addr := startTestServer(t, nil)
	dialWS(t, addr)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var snap StatsSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return false
		}
		return snap.Connections == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConnectionLimitPerIP(t *testing.T) {
	_, addr := startTestServer(t, func(cfg *Config) { cfg.Limits.MaxConnsPerIP = 1 })
	dialWS(t, addr)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimitDisconnects(t *testing.T) {
	_, addr := startTestServer(t, func(cfg *Config) { cfg.Limits.MaxMessagesPerSec = 3 })
	conn := dialWS(t, addr)

	for i := 0; i < 10; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.False(t, isTimeout(err), "expected the server to close, got %v", err)
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func TestMalformedInputKeepsConnection(t *testing.T) {
	_, addr := startTestServer(t, nil)
	conn := dialWS(t, addr)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp"}`)))
	sendJSON(t, conn, map[string]interface{}{"type": "ping", "clientTime": 1})

	readUntil(t, conn, func(msgType int, raw []byte) bool {
		return msgType == websocket.TextMessage
	})
}

func TestShutdownClosesClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shards = 1
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.WarnLevel)
	srv := NewServer(cfg, log, RealClock{}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn := dialWS(t, ln.Addr().String())
	join(t, conn, "alice", 10, 10)
	readBatchWith(t, conn, func(ids []string) bool { return contains(ids, "alice") })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, srv.Grid().Len())
	for _, sh := range srv.Shards() {
		assert.Equal(t, ShardShuttingDown, sh.State())
	}
}

func TestServeWithoutShards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shards = 0
	srv := NewServer(cfg, logrus.New(), nil, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), ErrNoShards)
}
