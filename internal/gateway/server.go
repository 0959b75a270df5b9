package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
	"matchcore/internal/engine"
	"matchcore/internal/risk"
	"matchcore/internal/workerpool"
)

const (
	maxFrameSize       = 4 * 1024
	defaultWorkers     = 10
	defaultConnTimeout = 5 * time.Second
)

// ErrClientDoesNotExist marks a report that couldn't find a live session to
// deliver to.
var ErrClientDoesNotExist = errors.New("gateway: client does not exist")

// clientMessage links a parsed inbound frame to the connection it arrived
// on, so sessionHandler can report back to the right party.
type clientMessage struct {
	address string
	message Message
}

// Server is the TCP front door: it accepts connections, hands each one to
// the worker pool for framing and parsing, runs risk admission ahead of
// every submission, and writes execution/error reports back to clients.
//
// Grounded in the teacher's internal/net/server.go: the same
// accept-loop-plus-pool-plus-session-handler shape, the same
// clientSessions map guarded by a mutex, generalized to route through
// risk.Gate and engine.Engine instead of the teacher's stubbed Engine
// interface, and through workerpool.Pool instead of the teacher's
// busy-looping utils.WorkerPool.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	risk    *risk.Gate
	pool    *workerpool.Pool

	cancel context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]net.Conn

	// ordersMu guards owners, the order-id to owning-address index that
	// lets the trade reporter route an ExecutionReport back to whichever
	// connection submitted each leg of a trade, even when the two legs
	// arrived on different connections at different times.
	ordersMu sync.Mutex
	owners   map[uuid.UUID]string

	inbound chan clientMessage

	addrMu sync.Mutex
	addr   string
}

// New creates a gateway server bound to address:port, driving engine and
// admitting orders through risk.
func New(address string, port int, eng *engine.Engine, gate *risk.Gate) *Server {
	return &Server{
		address:  address,
		port:     port,
		engine:   eng,
		risk:     gate,
		pool:     workerpool.New(defaultWorkers),
		sessions: make(map[string]net.Conn),
		owners:   make(map[uuid.UUID]string),
		inbound:  make(chan clientMessage, defaultWorkers),
	}
}

// Addr returns the listener's bound address once Run has started it, or the
// empty string before that.
func (s *Server) Addr() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Shutdown cancels the server's run context; Run returns once the accept
// loop observes it. The worker, session-handler and trade-reporter
// goroutines exit as the tomb dies; Run does not wait for them.
func (s *Server) Shutdown() {
	log.Info().Msg("gateway shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run starts accepting connections and blocks until ctx is cancelled or an
// unrecoverable listener error occurs.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return err
	}
	// Accept does not observe ctx, so the listener is closed once ctx is done
	// to unblock it.
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	s.addrMu.Lock()
	s.addr = listener.Addr().String()
	s.addrMu.Unlock()

	s.pool.Start(t)

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	trades, unsubscribe := s.engine.Trades()
	t.Go(func() error {
		defer unsubscribe()
		return s.tradeReporter(t, trades)
	})

	log.Info().Str("address", s.addr).Msg("gateway listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("client connected")
			s.addSession(conn)
			s.pool.Submit(func() error {
				return s.handleConnection(t, conn)
			})
		}
	}
}

// handleConnection reads one frame off conn, parses it, and hands it to the
// session handler. On any read or parse failure the session is torn down;
// otherwise the connection is resubmitted to the pool to read its next
// frame, matching the teacher's one-read-per-task, re-enqueue pattern.
func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) error {
	select {
	case <-t.Dying():
		return nil
	default:
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("failed setting deadline")
		s.closeSession(conn)
		return nil
	}

	buf := make([]byte, maxFrameSize)
	n, err := conn.Read(buf)
	if err != nil {
		log.Debug().Err(err).Str("address", conn.RemoteAddr().String()).Msg("connection closed")
		s.closeSession(conn)
		return nil
	}

	message, err := parseMessage(buf[:n])
	if err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
		s.closeSession(conn)
		return nil
	}

	s.inbound <- clientMessage{address: conn.RemoteAddr().String(), message: message}
	s.pool.Submit(func() error {
		return s.handleConnection(t, conn)
	})
	return nil
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.inbound:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Str("address", msg.address).Msg("message handler panicked, dropping message")
					}
				}()
				if err := s.dispatch(msg); err != nil {
					log.Error().Err(err).Str("address", msg.address).Msg("error handling message")
					s.reportError(msg.address, err)
				}
			}()
		}
	}
}

// tradeReporter drains trades published by the engine and emits an
// ExecutionReport to whichever locally-tracked connection owns each leg.
// A trade crossing two orders submitted through this gateway produces two
// reports; a trade where only one leg was submitted here produces one.
func (s *Server) tradeReporter(t *tomb.Tomb, trades <-chan common.Trade) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case trade, ok := <-trades:
			if !ok {
				return nil
			}
			s.reportTrade(trade)
		}
	}
}

func (s *Server) reportTrade(trade common.Trade) {
	if address, ok := s.ownerOf(trade.BuyOrderID); ok {
		s.send(address, Report{
			Kind:     ExecutionReport,
			OrderID:  trade.BuyOrderID,
			Symbol:   trade.Symbol,
			Side:     uint8(common.Buy),
			Price:    trade.Price.String(),
			Quantity: trade.Quantity.String(),
		})
	}
	if address, ok := s.ownerOf(trade.SellOrderID); ok {
		s.send(address, Report{
			Kind:     ExecutionReport,
			OrderID:  trade.SellOrderID,
			Symbol:   trade.Symbol,
			Side:     uint8(common.Sell),
			Price:    trade.Price.String(),
			Quantity: trade.Quantity.String(),
		})
	}
}

func (s *Server) trackOrder(id uuid.UUID, address string) {
	s.ordersMu.Lock()
	s.owners[id] = address
	s.ordersMu.Unlock()
}

func (s *Server) forgetOrder(id uuid.UUID) {
	s.ordersMu.Lock()
	delete(s.owners, id)
	s.ordersMu.Unlock()
}

func (s *Server) ownerOf(id uuid.UUID) (string, bool) {
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	address, ok := s.owners[id]
	return address, ok
}

func (s *Server) dispatch(msg clientMessage) error {
	switch m := msg.message.(type) {
	case NewOrderMessage:
		return s.handleNewOrder(msg.address, m)
	case CancelOrderMessage:
		return s.handleCancelOrder(msg.address, m)
	default:
		return ErrInvalidMessageType
	}
}

func (s *Server) handleNewOrder(address string, m NewOrderMessage) error {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return fmt.Errorf("invalid price: %w", err)
	}
	qty, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return fmt.Errorf("invalid quantity: %w", err)
	}

	order := common.NewOrder(m.Symbol, common.Side(m.Side), common.OrderType(m.OrderType), price, qty)
	if m.ClientTag != "" {
		tag := m.ClientTag
		order.ClientTag = &tag
	}

	if err := s.risk.Check(order); err != nil {
		s.reportError(address, err)
		return nil
	}

	// Tracked before Submit returns: a resting order can be matched by a
	// trade published asynchronously on the bus before this call returns.
	s.trackOrder(order.ID, address)

	updated, err := s.engine.Submit(order)
	if err != nil {
		s.forgetOrder(order.ID)
		s.reportError(address, err)
		return nil
	}
	if updated.Status.Terminal() {
		s.forgetOrder(order.ID)
	}

	s.reportAck(address, updated)
	return nil
}

func (s *Server) handleCancelOrder(address string, m CancelOrderMessage) error {
	cancelled, err := s.engine.Cancel(m.OrderID, m.Symbol)
	if err != nil {
		s.reportError(address, err)
		return nil
	}
	s.forgetOrder(m.OrderID)
	s.reportAck(address, cancelled)
	return nil
}

func (s *Server) reportAck(address string, order common.Order) {
	report := Report{
		Kind:     AckReport,
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Status:   uint8(order.Status),
		Price:    order.Price.String(),
		Quantity: order.Quantity.String(),
		Filled:   order.Filled.String(),
	}
	s.send(address, report)
}

func (s *Server) reportError(address string, err error) {
	report := Report{Kind: ErrorReport, Err: err.Error()}
	s.send(address, report)
}

func (s *Server) send(address string, report Report) {
	s.sessionsMu.Lock()
	conn, ok := s.sessions[address]
	s.sessionsMu.Unlock()
	if !ok {
		log.Debug().Err(ErrClientDoesNotExist).Str("address", address).Msg("unable to deliver report")
		return
	}
	if _, err := conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", address).Msg("unable to send report")
		s.closeSession(conn)
	}
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = conn
}

func (s *Server) closeSession(conn net.Conn) {
	address := conn.RemoteAddr().String()
	s.sessionsMu.Lock()
	delete(s.sessions, address)
	s.sessionsMu.Unlock()
	s.ordersMu.Lock()
	for id, owner := range s.owners {
		if owner == address {
			delete(s.owners, id)
		}
	}
	s.ordersMu.Unlock()
	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("error closing connection")
	}
}
