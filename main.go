package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"buddyim/config"
	"buddyim/db"
	"buddyim/metrics"
	"buddyim/presence"
	"buddyim/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "buddyim",
	Short: "Buddy directory and presence server",
	Long: `buddyim serves account registration and buddy lists over TCP and
presence publish/query over UDP.

Settings come from BUDDYIM_* environment variables, optionally layered over
the YAML file named by BUDDYIM_CONFIG.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runServer(cfg *config.Config) error {
	store, err := db.Open(cfg.Server.StoreBackend, cfg.Server.StorePath())
	if err != nil {
		return fmt.Errorf("initialize account store: %w", err)
	}
	defer store.Close()

	srvConfig := &server.ServerConfig{
		TCPPort:           cfg.Server.TCPPort,
		UDPPort:           cfg.Server.UDPPort,
		MaxConns:          cfg.Server.MaxConns,
		DatagramRateLimit: cfg.Server.DatagramRateLimit,
	}

	srv := server.New(store, presence.NewDirectory(), srvConfig)

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control socket for management commands; "shutdown" cancels ctx.
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()
	if cfg.Server.ControlSocket != "" {
		go startControlSocket(ctx, cfg.Server.ControlSocket, srv, shutdown)
	}

	if cfg.Server.MetricsPort > 0 {
		go func() {
			if err := metrics.Serve(ctx, cfg.Server.MetricsPort); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Printf("Server stopped")
	return nil
}

func startControlSocket(ctx context.Context, path string, srv *server.Server, shutdown context.CancelFunc) {
	// Remove existing socket file
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		log.Printf("Failed to create control socket: %v", err)
		return
	}
	defer os.Remove(path)
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	log.Printf("Control socket listening on %s", path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		go handleControlCommand(srv, conn, shutdown)
	}
}

func handleControlCommand(srv *server.Server, conn net.Conn, shutdown context.CancelFunc) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	switch strings.TrimSpace(line) {
	case "stats":
		conn.Write([]byte("OK|" + srv.Stats() + "\n"))

	case "shutdown":
		conn.Write([]byte("OK|Shutting down\n"))
		log.Printf("Shutdown requested via control socket")
		shutdown()

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}
