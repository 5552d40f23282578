// Command riptide-client connects to a riptide-server demo hub, sends
// each line read from stdin as a relayed chat message, and logs whatever
// it receives. It exists to
// exercise peer.Client end to end, not as a production chat client.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/handler"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/metrics"
	"github.com/ventosilenzioso/riptide/peer"
	"github.com/ventosilenzioso/riptide/riptidelog"
	"github.com/ventosilenzioso/riptide/transport"
)

const (
	chatMessageID   = 1
	whoamiMessageID = 2
)

func main() {
	var (
		serverAddr string
		bindAddr   string
		verbose    bool
		tickHz     int
	)

	cmd := &cobra.Command{
		Use:   "riptide-client",
		Short: "Connect to a riptide peer hub demo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(serverAddr, bindAddr, verbose, tickHz)
		},
	}
	cmd.Flags().StringVar(&serverAddr, "server", "127.0.0.1:7777", "server UDP address")
	cmd.Flags().StringVar(&bindAddr, "bind", ":0", "local UDP address to bind")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().IntVar(&tickHz, "tick-hz", 60, "client tick rate")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(serverAddr, bindAddr string, verbose bool, tickHz int) error {
	log := riptidelog.New(verbose)
	riptidelog.Section("riptide-client")

	pool := message.NewPool(2048)
	handlers := handler.NewTable(log)
	handlers.Register(chatMessageID, func(m *message.Message, from *connection.Connection) {
		text, err := m.GetString()
		if err != nil {
			return
		}
		fmt.Printf("[peer %d] %s\n", from.ID, text)
	})
	handlers.Register(whoamiMessageID, func(m *message.Message, from *connection.Connection) {
		id, err := m.GetU16()
		if err != nil {
			return
		}
		log.Info("server confirmed our connection id", "id", id)
	})

	cfg := peer.DefaultClientConfig()
	cfg.Handlers = handlers
	cfg.Log = log

	clock := clockwork.NewRealClock()
	cli := peer.NewClient(pool, clock, cfg)
	cli.SetMetrics(metrics.New(nil))

	udp := transport.NewUDPTransport(bindAddr, transport.IPv4Only, clock, cli.HandleTransportEvent)
	if err := cli.Start(udp); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer cli.Stop()

	raddr, err := net.ResolveUDPAddr("udp4", serverAddr)
	if err != nil {
		return fmt.Errorf("resolve server addr: %w", err)
	}
	if err := cli.Connect(raddr, nil); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Info("connecting", "server", serverAddr)

	tick := time.Second / time.Duration(tickHz)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sentWhoami := false
	for {
		select {
		case <-ticker.C:
			cli.Tick()
			if !sentWhoami && cli.State() == connection.Connected {
				sentWhoami = true
				if err := cli.SendReliable(whoamiMessageID, nil); err != nil {
					log.Error("whoami send failed", "error", err)
				}
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if cli.State() != connection.Connected {
				log.Warn("not connected yet, dropping input line")
				continue
			}
			if err := cli.SendReliableRelay(chatMessageID, func(m *message.Message) error {
				return m.AddString(line)
			}); err != nil {
				log.Error("send failed", "error", err)
			}
		}
	}
}
