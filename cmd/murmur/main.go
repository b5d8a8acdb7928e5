package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Operative-001/murmur/internal/config"
	"github.com/Operative-001/murmur/internal/console"
	"github.com/Operative-001/murmur/internal/node"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "murmur <port>",
	Short: "Peer-to-peer text chat over plain TCP.",
	Long: `murmur: a peer-to-peer chat node.

Every node listens on <port> for other nodes and can connect out to any
number of them. Type 'help' at the prompt for the command list.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	port, err := config.ParsePort(args[0])
	if err != nil {
		return err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("relay") {
		cfg.Relay, _ = cmd.Flags().GetBool("relay")
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	con := console.New(os.Stdout)
	n, err := node.New(node.Config{
		Port:     port,
		Settings: cfg,
		Events:   con,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; continuing without inbound connections.\n", err)
	} else {
		fmt.Printf("Listening on port %d. Type 'help' for commands.\n", n.MyPort())
	}
	if cfg.Relay {
		fmt.Printf("Relay mode: received messages are forwarded to every other peer.\n"+
			"Repeats of the same text within %s are not forwarded again.\n", cfg.RelayWindow)
	}

	return con.Run(n, os.Stdin)
}

func init() {
	rootCmd.Flags().String("config", "", "YAML settings file")
	rootCmd.Flags().Bool("relay", false, "Forward received messages to all other peers")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nUsage: %s\n", err, rootCmd.UseLine())
		os.Exit(1)
	}
}
