package observer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hydrocraft.sim/internal/observerproto"
	"hydrocraft.sim/internal/sim/water"
	"hydrocraft.sim/internal/sim/world"
)

// Server streams read-only simulation frames to loopback observers. The
// WS handlers only manage session registration; all world/sim reads happen
// inside Publish, which the simulation loop calls once per tick.
type Server struct {
	store *world.ChunkStore
	sim   *water.Simulation
	boot  observerproto.BootstrapResponse
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	out chan []byte

	sub      observerproto.SubscribeMsg
	needSync bool
}

func NewServer(store *world.ChunkStore, sim *water.Simulation, boot observerproto.BootstrapResponse, logger *log.Logger) *Server {
	return &Server{
		store:    store,
		sim:      sim,
		boot:     boot,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := s.boot
		resp.Tick = s.sim.CurrentTick()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closePolicy(conn, "bad subscribe")
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			closePolicy(conn, "expected SUBSCRIBE")
			return
		}
		normalizeSubscribe(&sub)

		sid := s.register(sub)
		defer s.unregister(sid)

		sess := s.session(sid)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for b := range sess.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var upd observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			if upd.Type != "SUBSCRIBE" || upd.ProtocolVersion != observerproto.Version {
				continue
			}
			normalizeSubscribe(&upd)
			s.updateSubscription(sid, upd)
		}

		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Publish builds and fans out the per-tick frames. Must be called from the
// simulation goroutine so store and cell reads are race-free. Slow
// subscribers drop frames rather than stalling the tick.
func (s *Server) Publish(stats water.TickStats, dirty []world.ChunkKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return
	}

	for _, sess := range s.sessions {
		if sess.needSync {
			sess.needSync = false
			for _, key := range s.chunksInRadius(sess.sub) {
				if b := s.chunkVoxelFrame(key); b != nil {
					sendLatest(sess.out, b)
				}
			}
		}

		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            stats.Tick,
			Stats:           stats,
		}
		for _, key := range dirty {
			if !inRadius(key, sess.sub.ChunkRadius) {
				continue
			}
			msg.DirtyChunks = append(msg.DirtyChunks, observerproto.ChunkRef{CX: key.CX, CZ: key.CZ})
		}
		if sess.sub.IncludeCells && len(msg.DirtyChunks) > 0 {
			dirtySet := map[world.ChunkKey]struct{}{}
			for _, ref := range msg.DirtyChunks {
				dirtySet[world.ChunkKey{CX: ref.CX, CZ: ref.CZ}] = struct{}{}
			}
			s.sim.EachCell(func(pos world.Vec3i, c water.Cell) {
				if _, ok := dirtySet[world.KeyFor(pos)]; !ok {
					return
				}
				msg.Cells = append(msg.Cells, observerproto.CellState{
					Pos:     pos.ToArray(),
					Level:   c.Level,
					Falling: c.Falling,
					Source:  c.Source,
				})
			})
		}

		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(sess.out, b)
	}
}

func (s *Server) chunkVoxelFrame(key world.ChunkKey) []byte {
	ch := s.store.ChunkAt(key)
	if ch == nil {
		return nil
	}
	msg := observerproto.ChunkVoxelsMsg{
		Type:            "CHUNK_VOXELS",
		ProtocolVersion: observerproto.Version,
		CX:              key.CX,
		CZ:              key.CZ,
		Encoding:        "PAL16_U16LE_YZX",
		Data:            base64.StdEncoding.EncodeToString(ch.Blob()),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

func (s *Server) chunksInRadius(sub observerproto.SubscribeMsg) []world.ChunkKey {
	keys := s.store.LoadedChunkKeys()
	out := keys[:0]
	for _, k := range keys {
		if inRadius(k, sub.ChunkRadius) {
			out = append(out, k)
		}
		if len(out) >= sub.MaxChunks {
			break
		}
	}
	return out
}

func inRadius(key world.ChunkKey, r int) bool {
	return key.CX >= -r && key.CX <= r && key.CZ >= -r && key.CZ <= r
}

func (s *Server) register(sub observerproto.SubscribeMsg) string {
	sid := fmt.Sprintf("O%d", s.nextID.Add(1))
	s.mu.Lock()
	s.sessions[sid] = &session{
		out:      make(chan []byte, 256),
		sub:      sub,
		needSync: true,
	}
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("observer %s subscribed (radius=%d)", sid, sub.ChunkRadius)
	}
	return sid
}

func (s *Server) session(sid string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sid]
}

func (s *Server) updateSubscription(sid string, sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sid]; ok {
		sess.sub = sub
		sess.needSync = true
	}
}

func (s *Server) unregister(sid string) {
	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if ok {
		delete(s.sessions, sid)
		close(sess.out)
	}
	s.mu.Unlock()
}

// sendLatest drops one stale frame under backpressure rather than block.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.ChunkRadius <= 0 {
		sub.ChunkRadius = 6
	}
	if sub.ChunkRadius > 32 {
		sub.ChunkRadius = 32
	}
	if sub.MaxChunks <= 0 {
		sub.MaxChunks = 1024
	}
	if sub.MaxChunks > 16384 {
		sub.MaxChunks = 16384
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
