// Package server is the wire-protocol TCP front end for the matching
// engine (C9): it accepts connections, dispatches reads through a
// bounded worker pool, decodes wire messages, calls the engine, and
// pushes execution reports back to participants.
//
// Structurally this follows the teacher's internal/net/server.go
// (tomb-supervised accept loop over a worker pool, a session map
// guarded by its own mutex) with two changes: sessions are keyed by a
// google/uuid assigned at accept time instead of the remote address
// (the teacher's ClientSession map broke under reconnect/NAT since two
// sessions can share an address over time), and the engine dependency
// is the concrete *engine.Engine plus an Observer hook rather than a
// bespoke PlaceOrder/CancelOrder interface. This also absorbs what was
// this package's prior content, an unwired gRPC debug server
// (fenrir/internal/protocol never existed in the workspace, so it
// could never have compiled) — replaced outright rather than adapted,
// since nothing in this spec calls for a debug RPC surface.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/common"
	"lobengine/internal/engine"
	"lobengine/internal/wire"
	"lobengine/internal/wpool"
)

const (
	maxRecvSize     = 4 * 1024
	defaultWorkers  = 10
	defaultReadWait = time.Second
)

// session is one connected client, addressable by its uuid rather than
// its network address.
type session struct {
	id   uuid.UUID
	conn net.Conn
}

// Server is the wire-protocol TCP listener.
type Server struct {
	address string
	engine  *engine.Engine
	pool    *wpool.Pool

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	// byOrder maps an order id to the session that last placed or
	// modified it, so an ExecutionReport can be routed back to each side
	// of a trade that is connected locally. Entries are removed only when
	// that session disconnects, not when the order fills or is cancelled.
	byOrder map[common.OrderID]uuid.UUID
}

// New builds a Server bound to addr, dispatching onto e.
func New(addr string, e *engine.Engine) *Server {
	s := &Server{
		address:  addr,
		engine:   e,
		sessions: make(map[uuid.UUID]*session),
		byOrder:  make(map[common.OrderID]uuid.UUID),
	}
	s.pool = wpool.New(defaultWorkers, 0, s.handleConnection)
	e.Attach(s)
	return s
}

// ObserveTrade satisfies engine.Observer: it routes an ExecutionReport
// to each side of the trade that has a live local session.
func (s *Server) ObserveTrade(t common.Trade) {
	report := wire.ExecutionReport{
		BidOrderID: t.Bid.OrderID,
		AskOrderID: t.Ask.OrderID,
		Price:      t.Bid.Price,
		Quantity:   t.Bid.Quantity,
	}
	payload := report.Serialize()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, orderID := range []common.OrderID{t.Bid.OrderID, t.Ask.OrderID} {
		sessID, ok := s.byOrder[orderID]
		if !ok {
			continue
		}
		sess, ok := s.sessions[sessID]
		if !ok {
			continue
		}
		if _, err := sess.conn.Write(payload); err != nil {
			log.Error().Err(err).Str("session", sessID.String()).Msg("failed to deliver execution report")
		}
	}
}

// ObserveReject satisfies engine.Observer. Rejections carry no order
// owner context at this layer (the engine doesn't track one), so they
// are logged only; a future extension could thread the originating
// session id through Add to report rejections per-client.
func (s *Server) ObserveReject(reason string) {
	log.Debug().Str("reason", reason).Msg("order rejected")
}

// Run accepts connections on s.address and serves them until t dies.
func (s *Server) Run(t *tomb.Tomb) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.address)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	t.Go(func() error { return s.pool.Run(t) })

	go func() {
		<-t.Dying()
		listener.Close()
	}()

	log.Info().Str("address", s.address).Msg("wire server listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
				log.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		sess := s.addSession(conn)
		log.Info().Str("session", sess.id.String()).Msg("client connected")
		s.pool.Submit(sess)
	}
}

func (s *Server) addSession(conn net.Conn) *session {
	sess := &session{id: uuid.New(), conn: conn}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *Server) removeSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	for orderID, sessID := range s.byOrder {
		if sessID == id {
			delete(s.byOrder, orderID)
		}
	}
}

func (s *Server) bindOrder(id common.OrderID, sessID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrder[id] = sessID
}

// handleConnection is the wpool.TaskFunc: it reads one message,
// dispatches it to the engine, and resubmits the connection for its
// next read, the same read-then-resubmit shape as the teacher's own
// handleConnection.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	sess, ok := task.(*session)
	if !ok {
		return nil
	}

	sess.conn.SetReadDeadline(time.Now().Add(defaultReadWait))
	buf := make([]byte, maxRecvSize)
	n, err := sess.conn.Read(buf)
	if err != nil {
		s.removeSession(sess.id)
		sess.conn.Close()
		return nil
	}

	msg, err := wire.ParseMessage(buf[:n])
	if err != nil {
		log.Error().Err(err).Str("session", sess.id.String()).Msg("malformed message")
		sess.conn.Write(wire.EncodeErrorReport(err.Error()))
		s.pool.Submit(sess)
		return nil
	}

	s.dispatch(sess, msg)
	s.pool.Submit(sess)
	return nil
}

func (s *Server) dispatch(sess *session, msg wire.Message) {
	switch m := msg.(type) {
	case wire.NewOrderMessage:
		s.bindOrder(m.OrderID, sess.id)
		s.engine.Add(common.NewOrder(m.Kind, m.OrderID, m.Side, m.Price, m.Quantity))
	case wire.CancelOrderMessage:
		s.engine.Cancel(m.OrderID)
	case wire.ModifyOrderMessage:
		s.bindOrder(m.OrderID, sess.id)
		s.engine.Modify(m.OrderID, m.Side, m.Price, m.Quantity)
	case wire.SnapshotRequestMessage:
		s.replySnapshot(sess)
	}
}

// replySnapshot answers a SnapshotRequestMessage with a serialized
// SnapshotReport written back on the requesting connection (spec §4.9).
func (s *Server) replySnapshot(sess *session) {
	bids, asks := s.engine.Snapshot()
	report := wire.SnapshotReport{Bids: toDepthEntries(bids), Asks: toDepthEntries(asks)}
	if _, err := sess.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("session", sess.id.String()).Msg("failed to deliver snapshot report")
	}
}

func toDepthEntries(levels []engine.LevelInfo) []wire.DepthEntry {
	out := make([]wire.DepthEntry, len(levels))
	for i, lvl := range levels {
		out[i] = wire.DepthEntry{Price: lvl.Price, Quantity: lvl.Quantity, Count: uint32(lvl.Count)}
	}
	return out
}
