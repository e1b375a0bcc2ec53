//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package main

import (
	"context"
	"net"
)

const reusePortSupported = false

// listenTCP binds addr; without SO_REUSEPORT shards share one listener
func listenTCP(ctx context.Context, addr string, _ bool) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
