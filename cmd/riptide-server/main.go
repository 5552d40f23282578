// Command riptide-server runs a small echo/chat demo hub: it accepts
// connections, relays chat messages between clients, and logs connect/
// disconnect events. It exists to exercise peer.Server end to end, not as
// a production-ready game server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/handler"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/metrics"
	"github.com/ventosilenzioso/riptide/peer"
	"github.com/ventosilenzioso/riptide/riptidelog"
	"github.com/ventosilenzioso/riptide/transport"
)

const (
	chatMessageID   = 1 // relayed to every other client, never dispatched locally
	whoamiMessageID = 2 // sent directly to the server, answered with a Welcome-style reply
)

func main() {
	var (
		addr        string
		maxClients  int
		verbose     bool
		metricsAddr string
		tickHz      int
	)

	cmd := &cobra.Command{
		Use:   "riptide-server",
		Short: "Run a riptide peer hub demo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, maxClients, verbose, metricsAddr, tickHz)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7777", "UDP address to bind")
	cmd.Flags().IntVar(&maxClients, "max-clients", peer.DefaultMaxClientCount, "maximum concurrent clients")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&tickHz, "tick-hz", 60, "server tick rate")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(addr string, maxClients int, verbose bool, metricsAddr string, tickHz int) error {
	log := riptidelog.New(verbose)
	riptidelog.Banner("riptide-server", "0.1.0")

	var reg *prometheus.Registry
	var mx *metrics.Metrics
	pool := message.NewPool(2048)
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		mx = metrics.New(reg)
		metrics.RegisterPoolCollector(reg, pool)
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Error("metrics server exited", "error", http.ListenAndServe(metricsAddr, nil))
		}()
	} else {
		mx = metrics.New(nil)
	}

	var srv *peer.Server
	handlers := handler.NewTable(log)
	handlers.Register(whoamiMessageID, func(m *message.Message, from *connection.Connection) {
		log.Info("whoami", "from", from.ID)
		if err := srv.SendReliable(from.ID, whoamiMessageID, func(reply *message.Message) error {
			return reply.AddU16(from.ID)
		}); err != nil {
			log.Error("whoami reply failed", "error", err)
		}
	})

	cfg := peer.DefaultServerConfig()
	cfg.MaxClientCount = maxClients
	cfg.Handlers = handlers
	cfg.Log = log
	cfg.AcceptLimiter = rate.NewLimiter(rate.Limit(20), 40)
	cfg.RelayFilter = []uint16{chatMessageID}

	clock := clockwork.NewRealClock()
	srv = peer.NewServer(pool, clock, cfg)
	srv.SetMetrics(mx)

	udp := transport.NewUDPTransport(addr, transport.IPv4Only, clock, srv.HandleTransportEvent)
	if err := srv.Start(udp); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer srv.Stop()

	log.Info("listening", "addr", addr, "max_clients", maxClients)

	tick := time.Second / time.Duration(tickHz)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for range ticker.C {
		srv.Tick()
	}
	return nil
}
