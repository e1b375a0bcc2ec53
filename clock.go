package main

import (
	"sync/atomic"
	"time"
)

// Clock provides time functionality
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time
type RealClock struct{}

// Now returns the current time
func (RealClock) Now() time.Time {
	return time.Now()
}

// nowMs returns the clock reading as epoch milliseconds
func nowMs(c Clock) int64 {
	return c.Now().UnixMilli()
}

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	ms atomic.Int64
}

// NewManualClock starts a manual clock at the given epoch millisecond
func NewManualClock(startMs int64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(startMs)
	return c
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

// Set jumps to the given epoch millisecond
func (c *ManualClock) Set(ms int64) {
	c.ms.Store(ms)
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(d.Milliseconds())
}
