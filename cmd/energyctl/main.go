// cmd/energyctl is the operator CLI, built with Cobra, for talking to one
// peer's debug API: it reads status, ledger, nodes and history, and
// proposes sell/buy trades.
//
// Usage:
//
//	energyctl status                              --server http://localhost:9001
//	energyctl ledger                               --server http://localhost:9001
//	energyctl nodes                                --server http://localhost:9001
//	energyctl history                              --server http://localhost:9001
//	energyctl sell 3 50                            --server http://localhost:9001
//	energyctl buy 3 50                             --server http://localhost:9001
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"distributed-energy-ledger/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "energyctl",
		Short: "Operator CLI for a peer's debug API",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:9001", "peer debug API address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(statusCmd(), ledgerCmd(), nodesCmd(), historyCmd(), tradeCmd("sell"), tradeCmd("buy"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this peer's coordination status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			data, err := c.Status(context.Background())
			if err != nil {
				return err
			}
			printRaw(data)
			return nil
		},
	}
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show this peer's own ledger state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			data, err := c.Ledger(context.Background())
			if err != nil {
				return err
			}
			printRaw(data)
			return nil
		},
	}
}

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Show the coordinator's registry of every node's ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			data, err := c.Nodes(context.Background())
			if err != nil {
				return err
			}
			printRaw(data)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show this peer's applied transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			data, err := c.History(context.Background())
			if err != nil {
				return err
			}
			printRaw(data)
			return nil
		},
	}
}

func tradeCmd(tradeType string) *cobra.Command {
	return &cobra.Command{
		Use:   tradeType + " <target-node-id> <amount>",
		Short: "Propose a " + tradeType + " trade with another node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount int
			if _, err := fmt.Sscanf(args[1], "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			c := client.New(serverAddr, timeout)
			data, err := c.Trade(context.Background(), args[0], amount, tradeType)
			if err != nil {
				return err
			}
			printRaw(data)
			return nil
		},
	}
}

func printRaw(data []byte) {
	fmt.Println(string(data))
}
