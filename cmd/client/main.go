// Command client is a small CLI driver against the gateway's TCP protocol:
// place an order, cancel one, or just listen for reports.
//
// Grounded in the teacher's cmd/client/client.go (flag-based CLI, a
// background goroutine reading reports while the main goroutine sends),
// generalized from fixed 4-byte tickers and float64 wire prices to the
// gateway package's variable-length symbol and decimal-string framing.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"matchcore/internal/gateway"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matching core")
	tag := flag.String("tag", "", "client tag attached to placed orders")
	action := flag.String("action", "place", "action to perform: 'place', 'cancel' or 'log' (listen only)")

	symbol := flag.String("symbol", "BTCUSD", "symbol to trade")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "order type: 'limit' or 'market'")
	price := flag.String("price", "0", "limit price (ignored for market orders)")
	qtyStr := flag.String("qty", "1", "quantity, or a comma-separated list (e.g. 1,2,5)")

	orderID := flag.String("id", "", "order id to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	var side uint8
	if strings.EqualFold(*sideStr, "sell") {
		side = 1
	}
	var orderType uint8
	if strings.EqualFold(*typeStr, "market") {
		orderType = 1
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			msg := gateway.NewOrderMessage{
				Side:      side,
				OrderType: orderType,
				Symbol:    *symbol,
				Price:     *price,
				Quantity:  qty,
				ClientTag: *tag,
			}
			if _, err := conn.Write(msg.Serialize()); err != nil {
				log.Printf("failed to send order (qty %s): %v", qty, err)
				continue
			}
			fmt.Printf("-> sent %s %s %s @ %s\n", strings.ToUpper(*sideStr), *symbol, qty, *price)
			time.Sleep(5 * time.Millisecond)
		}
	case "cancel":
		if *orderID == "" {
			log.Fatal("-id is required for cancel")
		}
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid order id: %v", err)
		}
		msg := gateway.CancelOrderMessage{OrderID: id, Symbol: *symbol}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for %s\n", *orderID)
	case "log":
		// Nothing to send: just listen for reports below.
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (press Ctrl+C to exit)")
	select {}
}

func parseQuantities(input string) []string {
	var result []string
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if _, err := strconv.ParseFloat(p, 64); err == nil {
			result = append(result, p)
		} else {
			log.Printf("warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

// readReports prints every Report frame the gateway sends back. It does not
// attempt to re-frame partial reads against TCP's stream boundaries beyond a
// single Read call, matching the gateway's one-frame-per-write contract.
func readReports(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Printf("\nconnection closed: %v\n", err)
			os.Exit(0)
		}
		printReport(buf[:n])
	}
}

func printReport(frame []byte) {
	if len(frame) == 0 {
		return
	}
	switch gateway.ReportType(frame[0]) {
	case gateway.ErrorReport:
		fmt.Printf("\n[ERROR] %s\n", string(frame[3:]))
	case gateway.AckReport:
		fmt.Printf("\n[ACK] order acknowledged\n")
	case gateway.ExecutionReport:
		fmt.Printf("\n[EXECUTION] trade reported\n")
	default:
		fmt.Printf("\n[REPORT] unrecognized frame kind %d\n", frame[0])
	}
}
