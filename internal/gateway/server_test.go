package gateway_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"matchcore/internal/engine"
	"matchcore/internal/gateway"
	"matchcore/internal/risk"
)

func startServer(t *testing.T) (*gateway.Server, func()) {
	t.Helper()
	eng := engine.New()
	gate := risk.New(risk.Limits{
		MaxOrderSize:    decimal.NewFromInt(1000),
		MaxPositionSize: decimal.NewFromInt(1000),
		MaxDailyLoss:    decimal.NewFromInt(1000000),
	})
	srv := gateway.New("127.0.0.1", 0, eng, gate)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, time.Millisecond)

	return srv, func() {
		cancel()
		<-done
	}
}

func TestGatewayAcksANewOrder(t *testing.T) {
	srv, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	order := gateway.NewOrderMessage{Side: 0, OrderType: 0, Symbol: "BTCUSD", Price: "50000", Quantity: "1"}
	_, err = conn.Write(order.Serialize())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.True(t, n > 0)
	require.Equal(t, byte(gateway.AckReport), buf[0])
}

// TestGatewayReportsExecutionAcrossConnections proves the concrete scenario
// a missing eng.Trades() subscription would miss: a resting order's owner
// must be told about a fill even though the crossing order arrives on a
// different connection, later, after the resting order's Ack was already
// delivered.
func TestGatewayReportsExecutionAcrossConnections(t *testing.T) {
	srv, stop := startServer(t)
	defer stop()

	buyer, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer buyer.Close()

	resting := gateway.NewOrderMessage{Side: 0, OrderType: 0, Symbol: "BTCUSD", Price: "50000", Quantity: "1"}
	_, err = buyer.Write(resting.Serialize())
	require.NoError(t, err)

	require.NoError(t, buyer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, err := buyer.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(gateway.AckReport), buf[0])

	seller, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer seller.Close()

	crossing := gateway.NewOrderMessage{Side: 1, OrderType: 0, Symbol: "BTCUSD", Price: "50000", Quantity: "1"}
	_, err = seller.Write(crossing.Serialize())
	require.NoError(t, err)

	require.NoError(t, seller.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = seller.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(gateway.AckReport), buf[0])

	require.NoError(t, buyer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = buyer.Read(buf)
	require.NoError(t, err)
	require.True(t, n > 0)
	require.Equal(t, byte(gateway.ExecutionReport), buf[0])
}
