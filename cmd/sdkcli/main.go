// Command sdkcli is a small interactive driver over the terminal-state
// replica and trade facade: it connects one account, prints a summary
// of its current state, and accepts a handful of readline commands to
// poke at it. It exists to exercise the SDK end to end, not as a
// supported trading tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"prime-tradestate-go/connection"
	"prime-tradestate-go/health"
	"prime-tradestate-go/terminalstate"
	"prime-tradestate-go/trade"
)

type envConfig struct {
	token     string
	accountID string
	url       string
	symbol    string
}

func loadEnvConfig() (envConfig, error) {
	_ = godotenv.Load()

	cfg := envConfig{
		token:     os.Getenv("TOKEN"),
		accountID: os.Getenv("ACCOUNT_ID"),
		url:       os.Getenv("WEBSOCKET_URL"),
		symbol:    os.Getenv("SYMBOL"),
	}
	if cfg.symbol == "" {
		cfg.symbol = "EURUSD"
	}
	if cfg.token == "" || cfg.accountID == "" || cfg.url == "" {
		return cfg, fmt.Errorf("sdkcli: TOKEN, ACCOUNT_ID and WEBSOCKET_URL must all be set")
	}
	return cfg, nil
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := loadEnvConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replica := terminalstate.New(logger)

	decode := func(frame connection.WireEvent) (connection.Event, error) {
		return decodeWireEvent(frame)
	}
	source, err := connection.NewWebsocketSource(ctx, cfg.url, decode, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}

	orchestrator := connection.New(source, logger)
	orchestrator.AddListener(replica)

	monitor := health.New(replica, func() bool { return true }, func() []string { return []string{cfg.symbol} })
	orchestrator.AddListener(priceListener{monitor})

	go monitor.Run(ctx)
	go func() {
		if err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("dispatch loop exited")
		}
	}()

	facade := trade.New(noopSender{}, cfg.accountID)
	repl(ctx, replica, monitor, facade, cfg.symbol)
}

// priceListener adapts health.Monitor's single OnSymbolPriceUpdated
// hook to the orchestrator's SymbolPricesUpdatedListener capability,
// which delivers a batch of prices per event.
type priceListener struct {
	monitor *health.Monitor
}

func (p priceListener) OnSymbolPricesUpdated(instanceIndex string, prices []terminalstate.Price, extras terminalstate.PriceUpdateExtras) {
	for _, price := range prices {
		p.monitor.OnSymbolPriceUpdated(price)
	}
}

// noopSender stands in for a real websocket-backed trade.Sender in
// this example driver; wiring a live one is left to an integrator.
type noopSender struct{}

func (noopSender) SendTrade(ctx context.Context, accountID, correlationID string, params map[string]interface{}) (trade.Response, error) {
	return trade.Response{}, fmt.Errorf("sdkcli: trade sending is not wired up in this example driver")
}

func (noopSender) SendReconnect(ctx context.Context, accountID string) error {
	return nil
}

func repl(ctx context.Context, replica *terminalstate.Replica, monitor *health.Monitor, facade *trade.Facade, symbol string) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sdkcli> ",
		HistoryFile:     "/tmp/sdkcli_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create readline")
		return
	}
	defer rl.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "status":
			s := monitor.Status()
			fmt.Printf("connected=%v connectedToBroker=%v healthy=%v uptime=%.2f%%\n%s\n",
				s.Connected, s.ConnectedToBroker, s.Healthy, monitor.Uptime(), s.Message)
		case "positions":
			for _, p := range replica.Positions() {
				fmt.Printf("%s %s %.2f @ %.5f profit=%.2f\n", p.ID, p.Symbol, p.Volume, p.OpenPrice, p.Profit)
			}
		case "orders":
			for _, o := range replica.Orders() {
				fmt.Printf("%s %s %.2f @ %.5f\n", o.ID, o.Symbol, o.Volume, o.OpenPrice)
			}
		case "price":
			p := replica.Price(symbol)
			if p == nil {
				fmt.Println("no price yet")
				continue
			}
			fmt.Printf("%s bid=%.5f ask=%.5f\n", p.Symbol, p.Bid, p.Ask)
		case "wait":
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			p, err := replica.WaitForPrice(waitCtx, symbol, 10*time.Second)
			cancel()
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("%s bid=%.5f ask=%.5f\n", p.Symbol, p.Bid, p.Ask)
		case "help":
			fmt.Println("commands: status, positions, orders, price, wait, exit")
		case "exit":
			return
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}
