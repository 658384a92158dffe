package main

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"buddyim/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var socketPath string

var ctlCmd = &cobra.Command{
	Use:       "ctl <stats|shutdown>",
	Short:     "Send a management command to a running server",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stats", "shutdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := socketPath
		if path == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path = cfg.Server.ControlSocket
		}

		resp, err := sendControlCommand(path, args[0])
		if err != nil {
			return err
		}
		fmt.Println(formatControlResponse(resp))
		if strings.HasPrefix(resp, "ERROR|") {
			return fmt.Errorf("command %q failed", args[0])
		}
		return nil
	},
}

func init() {
	ctlCmd.Flags().StringVar(&socketPath, "socket", "", "control socket path (default from config)")
	rootCmd.AddCommand(ctlCmd)
}

func sendControlCommand(path, command string) (string, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return "", fmt.Errorf("connect to control socket %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read control response: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// formatControlResponse renders "OK|..." green and "ERROR|..." red.
func formatControlResponse(resp string) string {
	status, body, _ := strings.Cut(resp, "|")
	switch status {
	case "OK":
		return color.GreenString("OK") + " " + strings.ReplaceAll(body, ",", " ")
	case "ERROR":
		return color.RedString("ERROR") + " " + body
	}
	return resp
}
