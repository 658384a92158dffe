package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"buddyim/client/chat"
	"buddyim/client/directory"
	"buddyim/client/ui"
	"buddyim/config"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cc := &cfg.Client

	rootCmd := &cobra.Command{
		Use:           "buddyim-client",
		Short:         "Terminal client for the buddyim directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cc)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&cc.ServerHost, "server", cc.ServerHost, "directory server host")
	flags.IntVar(&cc.TCPPort, "tcp-port", cc.TCPPort, "directory TCP port")
	flags.IntVar(&cc.UDPPort, "udp-port", cc.UDPPort, "directory UDP port")
	flags.IntVar(&cc.ChatPort, "chat-port", cc.ChatPort, "local chat port (0 = random)")
	flags.DurationVar(&cc.PollInterval, "poll", cc.PollInterval, "presence poll interval")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cc *config.ClientConfig) error {
	tcpAddr := net.JoinHostPort(cc.ServerHost, strconv.Itoa(cc.TCPPort))
	udpAddr := net.JoinHostPort(cc.ServerHost, strconv.Itoa(cc.UDPPort))

	view := &directory.View{}
	app := ui.NewApp(directory.NewClient(tcpAddr, udpAddr), view)
	log.SetOutput(app.LogWriter())
	log.SetFlags(log.Ltime)

	negotiator, err := chat.Listen("", cc.ChatPort, app.ChatHandlers())
	if err != nil {
		return fmt.Errorf("chat listener: %w", err)
	}
	poller := directory.NewPoller(udpAddr, negotiator.Port(), cc.PollInterval, view)
	app.Attach(negotiator, poller)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return negotiator.Serve(ctx) })
	g.Go(func() error { return poller.Run(ctx) })

	runErr := app.Run()
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
