package observer

import (
	"testing"

	"hydrocraft.sim/internal/observerproto"
	"hydrocraft.sim/internal/sim/world"
)

func TestNormalizeSubscribe(t *testing.T) {
	cases := []struct {
		in         observerproto.SubscribeMsg
		radius, mx int
	}{
		{observerproto.SubscribeMsg{}, 6, 1024},
		{observerproto.SubscribeMsg{ChunkRadius: -3, MaxChunks: -1}, 6, 1024},
		{observerproto.SubscribeMsg{ChunkRadius: 10, MaxChunks: 2048}, 10, 2048},
		{observerproto.SubscribeMsg{ChunkRadius: 999, MaxChunks: 1 << 20}, 32, 16384},
	}
	for _, tc := range cases {
		sub := tc.in
		normalizeSubscribe(&sub)
		if sub.ChunkRadius != tc.radius || sub.MaxChunks != tc.mx {
			t.Errorf("normalize(%+v) = radius %d max %d, want %d %d",
				tc.in, sub.ChunkRadius, sub.MaxChunks, tc.radius, tc.mx)
		}
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	yes := []string{"127.0.0.1:51234", "127.0.0.1", "[::1]:8080", "::1"}
	for _, addr := range yes {
		if !isLoopbackRemote(addr) {
			t.Errorf("isLoopbackRemote(%q) = false", addr)
		}
	}
	no := []string{"10.0.0.5:80", "192.168.1.2", "example.com:80", ""}
	for _, addr := range no {
		if isLoopbackRemote(addr) {
			t.Errorf("isLoopbackRemote(%q) = true", addr)
		}
	}
}

func TestInRadius(t *testing.T) {
	if !inRadius(world.ChunkKey{CX: 2, CZ: -2}, 2) {
		t.Fatal("corner chunk outside radius")
	}
	if inRadius(world.ChunkKey{CX: 3, CZ: 0}, 2) {
		t.Fatal("far chunk inside radius")
	}
}
