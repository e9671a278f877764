package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/beacon/pkg/broker"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/probe"
	"github.com/cuemby/beacon/pkg/registry"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "beacon",
	Short:   "Beacon - a replicated publish/subscribe message broker",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("beacon version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("addr", ":5001", "HTTP listen address")
	rootCmd.AddCommand(runCmd)

	clusterStatusCmd.Flags().StringSlice("peer", nil, "peer host:port to query (repeatable); defaults to the registry's peers (BEACON_PEERS or the compiled-in table), excluding the BROKER_ID entry")
	clusterCmd.AddCommand(clusterStatusCmd)
	rootCmd.AddCommand(clusterCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this broker process",
	Long: `Run starts the broker's HTTP surface and background loops
(gossip, leader health monitor, startup election). Peer identity comes
from the BROKER_ID environment variable (default 1); the peer table
comes from the compiled-in three-broker topology unless overridden by
BEACON_PEERS (id=host:port,... ).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		reg, err := registry.FromEnv()
		if err != nil {
			return fmt.Errorf("failed to load peer registry: %w", err)
		}

		b := broker.New(reg, addr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return b.Run(ctx)
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect a beacon cluster",
}

var clusterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query /get_leader and /ping against every known peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		peers, _ := cmd.Flags().GetStringSlice("peer")
		if len(peers) == 0 {
			reg, err := registry.FromEnv()
			if err != nil {
				return err
			}
			for _, id := range reg.IDs() {
				addr, _ := reg.AddressOf(id)
				peers = append(peers, string(addr))
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PEER\tPING\tLEADER")
		for _, peer := range peers {
			printPeerStatus(w, peer)
		}
		return w.Flush()
	},
}

func printPeerStatus(w *tabwriter.Writer, peer string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	checker := probe.NewHTTPChecker(fmt.Sprintf("http://%s/ping", peer), 2*time.Second)
	result := checker.Check(ctx)

	pingStatus := "unreachable"
	if result.Healthy {
		pingStatus = "ok"
	}

	leader := "?"
	if result.Healthy {
		if id, err := fetchLeader(ctx, peer); err == nil {
			leader = id
		}
	}

	fmt.Fprintf(w, "%s\t%s\t%s\n", peer, pingStatus, leader)
}

func fetchLeader(ctx context.Context, peer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/get_leader", peer), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		LeaderID *int `json:"leader_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.LeaderID == nil {
		return "none", nil
	}
	return fmt.Sprintf("%d", *body.LeaderID), nil
}
