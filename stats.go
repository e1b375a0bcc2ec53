package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats holds process-wide counters. All methods are safe on a nil *Stats.
type Stats struct {
	connections  atomic.Int64
	objects      atomic.Int64
	gridOps      atomic.Int64
	msgProcessed atomic.Int64
	msgSent      atomic.Int64
	sendFailures atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	Connections  int64 `json:"connections"`
	Objects      int64 `json:"objects"`
	GridOps      int64 `json:"grid_ops"`
	MsgProcessed int64 `json:"msg_processed"`
	MsgSent      int64 `json:"msg_sent"`
	SendFailures int64 `json:"send_failures"`
}

func (s *Stats) Connected() {
	if s != nil {
		s.connections.Add(1)
	}
}

func (s *Stats) Disconnected() {
	if s != nil {
		s.connections.Add(-1)
	}
}

// ObjectsDelta adjusts the count of shard-owned entities
func (s *Stats) ObjectsDelta(n int) {
	if s != nil {
		s.objects.Add(int64(n))
	}
}

func (s *Stats) GridOp() {
	if s != nil {
		s.gridOps.Add(1)
	}
}

func (s *Stats) Processed() {
	if s != nil {
		s.msgProcessed.Add(1)
	}
}

func (s *Stats) Sent() {
	if s != nil {
		s.msgSent.Add(1)
	}
}

func (s *Stats) SendFailed() {
	if s != nil {
		s.sendFailures.Add(1)
	}
}

// Snapshot reads every counter
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Connections:  s.connections.Load(),
		Objects:      s.objects.Load(),
		GridOps:      s.gridOps.Load(),
		MsgProcessed: s.msgProcessed.Load(),
		MsgSent:      s.msgSent.Load(),
		SendFailures: s.sendFailures.Load(),
	}
}

// Report logs the counters every period until ctx is done
func (s *Stats) Report(ctx context.Context, period time.Duration, grid *Grid, log *logrus.Entry) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			log.WithFields(logrus.Fields{
				"connections":   snap.Connections,
				"objects":       snap.Objects,
				"grid_refs":     grid.Len(),
				"grid_ops":      snap.GridOps,
				"msg_processed": snap.MsgProcessed,
				"msg_sent":      snap.MsgSent,
				"send_failures": snap.SendFailures,
			}).Info("stats")
		}
	}
}
