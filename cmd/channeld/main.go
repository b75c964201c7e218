// Command channeld is a thin demonstration CLI over the channel engine
// library. It exists to exercise the event store, reconstructor and
// DirectFund objective engine end to end over an in-memory store; it is
// not a production surface and speaks to no chain or peer.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/channelforge/engine/core"
	"github.com/channelforge/engine/pkg/config"
)

var (
	cfgEnv string
	logger = logrus.New()

	store   *core.EventStore
	recon   *core.Reconstructor
	metrics *core.Metrics
	valCtx  core.ValidationContext
)

func initMiddleware(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgEnv)
	if err != nil {
		logger.WithError(err).Warn("no config file found, using built-in defaults")
		cfg = &config.Config{}
		cfg.Engine.SnapshotInterval = 1000
	}
	if lvl, parseErr := logrus.ParseLevel(cfg.Logging.Level); parseErr == nil {
		logger.SetLevel(lvl)
	}

	store = core.NewEventStore(logger)
	recon = core.NewReconstructor(store, cfg.Engine.SnapshotInterval, logger)
	metrics = core.NewMetrics(logger)
	valCtx = core.NewValidationContext(recon, cfg.Engine.ValidationCache)
	store.Subscribe(func(se core.StoredEvent) {
		metrics.ObserveAppend(se.Event.Kind(), se.Offset+1)
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:              "channeld",
		Short:            "demonstration CLI for the event-sourced channel engine",
		PersistentPreRun: initMiddleware,
	}
	rootCmd.PersistentFlags().StringVar(&cfgEnv, "env", "", "config environment overlay (merges cmd/channeld/config/<env>.yaml)")
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(objectiveCmd())
	rootCmd.AddCommand(channelCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bail(err error) {
	if err != nil {
		log.Fatalf("channeld: %v", err)
	}
}

// demoCmd drives a complete two-party DirectFund happy path through the
// in-memory store, printing the WaitingFor transition and side effects
// emitted at each crank step.
func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "run a two-party DirectFund funding round end to end",
		Run: func(cmd *cobra.Command, args []string) {
			bail(runDirectFundDemo())
		},
	}
	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "inspect the in-memory event log"}
	list := &cobra.Command{
		Use:   "list",
		Short: "print every event in the log as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			all, err := store.ReadAll()
			bail(err)
			b, err := json.MarshalIndent(all, "", "  ")
			bail(err)
			fmt.Println(string(b))
		},
	}
	cmd.AddCommand(list)
	return cmd
}

func objectiveCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "objective", Short: "inspect reconstructed objective state"}
	status := &cobra.Command{
		Use:   "status [id-hex]",
		Short: "reconstruct and print an objective's state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := core.HashFromHex(args[0])
			bail(err)
			st, err := recon.ReconstructObjective(id)
			bail(err)
			b, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(b))
		},
	}
	cmd.AddCommand(status)
	return cmd
}

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "channel", Short: "inspect reconstructed channel state"}
	status := &cobra.Command{
		Use:   "status [id-hex]",
		Short: "reconstruct and print a channel's state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := core.HashFromHex(args[0])
			bail(err)
			st, err := recon.ReconstructChannel(id)
			bail(err)
			b, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(b))
		},
	}
	cmd.AddCommand(status)
	return cmd
}
