package main

import "sync"

// Gate admits new connections against per-IP and process-wide limits.
// Shared by every shard's HTTP handler.
type Gate struct {
	mu         sync.Mutex
	perIP      int
	total      int
	ipConns    map[string]int
	totalConns int
}

// NewGate creates a gate; a limit of zero or less disables that check
func NewGate(limits LimitsConfig) *Gate {
	return &Gate{
		perIP:   limits.MaxConnsPerIP,
		total:   limits.MaxTotalConns,
		ipConns: make(map[string]int),
	}
}

// Admit reserves a slot for ip, returning false when a limit is reached.
// Every admitted connection must be released exactly once.
func (g *Gate) Admit(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.total > 0 && g.totalConns >= g.total {
		return false
	}
	if g.perIP > 0 && g.ipConns[ip] >= g.perIP {
		return false
	}
	g.ipConns[ip]++
	g.totalConns++
	return true
}

// Release frees the slot held by ip
func (g *Gate) Release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ipConns[ip] <= 0 {
		return
	}
	g.ipConns[ip]--
	if g.ipConns[ip] == 0 {
		delete(g.ipConns, ip)
	}
	g.totalConns--
}

// TotalConns returns the admitted connection count
func (g *Gate) TotalConns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalConns
}

// ConnsFrom returns the admitted connection count for one ip
func (g *Gate) ConnsFrom(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ipConns[ip]
}
