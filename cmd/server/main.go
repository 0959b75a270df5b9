// Command server runs the matching core: a risk gate in front of the
// matching engine, fronted by a TCP gateway.
//
// Grounded in the teacher's cmd/main.go (signal.NotifyContext shutdown,
// wiring the engine and the net server together and running the server in
// a goroutine), generalized from a single hardcoded Equities engine to a
// symbol-agnostic engine plus an explicit risk gate, and from the teacher's
// stub AssetType registration to a flag-configured address/port and risk
// limits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
	"matchcore/internal/engine"
	"matchcore/internal/gateway"
	"matchcore/internal/risk"
)

func main() {
	address := flag.String("address", "0.0.0.0", "address to bind the gateway to")
	port := flag.Int("port", 9001, "port to bind the gateway to")
	maxOrderSize := flag.String("max-order-size", "1000", "maximum quantity accepted on a single order")
	maxPositionSize := flag.String("max-position-size", "10000", "maximum absolute position size per symbol")
	maxDailyLoss := flag.String("max-daily-loss", "50000", "maximum realized loss per day before the circuit breaker trips")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	limits := risk.Limits{
		MaxOrderSize:    mustDecimal(*maxOrderSize),
		MaxPositionSize: mustDecimal(*maxPositionSize),
		MaxDailyLoss:    mustDecimal(*maxDailyLoss),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.New()
	gate := risk.New(limits)
	srv := gateway.New(*address, *port, eng, gate)

	// Feed every executed trade back into the risk gate's position
	// accounting from both sides, independently of the gateway that
	// submitted the originating orders.
	trades, unsubscribe := eng.Trades()
	defer unsubscribe()
	go func() {
		for trade := range trades {
			gate.ApplyTrade(trade.Symbol, common.Buy, trade.Price, trade.Quantity)
			gate.ApplyTrade(trade.Symbol, common.Sell, trade.Price, trade.Quantity)
		}
	}()

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("gateway exited with error")
		}
	}()

	log.Info().Str("address", *address).Int("port", *port).Msg("matching core started")
	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal().Err(err).Str("value", s).Msg("invalid decimal flag value")
		os.Exit(1)
	}
	return d
}
