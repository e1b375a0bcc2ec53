package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

var (
	ErrQueueFull  = errors.New("send queue full")
	ErrPeerClosed = errors.New("peer closed")
)

type frame struct {
	kind FrameKind
	data []byte
}

// Client is one WebSocket connection bound to a shard
type Client struct {
	id         string
	shard      *Shard
	gate       *Gate
	conn       *websocket.Conn
	send       chan frame
	remoteAddr string
	log        *logrus.Entry

	maxPerSec  int
	msgCount   int
	msgResetAt time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection
func NewClient(shard *Shard, gate *Gate, conn *websocket.Conn, remoteAddr string, maxPerSec int) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		shard:      shard,
		gate:       gate,
		conn:       conn,
		send:       make(chan frame, sendBufSize),
		remoteAddr: remoteAddr,
		log:        shard.log.WithFields(logrus.Fields{"conn": id, "remote": remoteAddr}),
		maxPerSec:  maxPerSec,
		closed:     make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// Send queues a frame for the write pump without blocking. A slow client
// loses frames instead of stalling the shard.
func (c *Client) Send(kind FrameKind, data []byte) error {
	select {
	case <-c.closed:
		return ErrPeerClosed
	default:
	}
	select {
	case c.send <- frame{kind: kind, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the write pump, which closes the socket and ends the read pump
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// ReadPump forwards inbound messages to the shard until the socket fails
func (c *Client) ReadPump() {
	defer func() {
		c.shard.Close(c)
		c.gate.Release(c.remoteAddr)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("ws read")
			}
			return
		}
		if !c.allow(time.Now()) {
			c.log.Warn("rate limit exceeded, disconnecting")
			return
		}
		c.shard.Message(c, message)
	}
}

// allow counts one message against the per-second budget
func (c *Client) allow(now time.Time) bool {
	if c.maxPerSec <= 0 {
		return true
	}
	if now.After(c.msgResetAt) {
		c.msgCount = 0
		c.msgResetAt = now.Add(time.Second)
	}
	c.msgCount++
	return c.msgCount <= c.maxPerSec
}

// WritePump drains the send queue to the socket and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msgType := websocket.TextMessage
			if f.kind == FrameBinary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, f.data); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
