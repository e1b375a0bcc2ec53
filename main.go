package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	portFlag    int
	shardsFlag  int
	journalFlag string
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Multiplayer arena game server",
	Long:  `arena runs the sharded WebSocket server that tracks players and projectiles in a shared world.`,
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the game server",
	RunE:  runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
		cmd.Flags().IntVar(&portFlag, "port", 0, "listen port (overrides config)")
		cmd.Flags().IntVar(&shardsFlag, "shards", 0, "worker shard count (overrides config)")
		cmd.Flags().StringVar(&journalFlag, "journal", "", "SQLite event journal path (overrides config)")
	}
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadServeConfig reads the config file and applies flag overrides
func loadServeConfig() (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}
	if shardsFlag > 0 {
		cfg.Shards = shardsFlag
	}
	if journalFlag != "" {
		cfg.Journal.Path = journalFlag
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.Log, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var journal *Analytics
	if cfg.Journal.Path != "" {
		db, err := OpenDB(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		journal = NewAnalytics(db, log.WithField("component", "journal"))
		defer journal.Stop()
	}

	srv := NewServer(cfg, log, RealClock{}, journal)
	go srv.Stats().Report(ctx, cfg.Tick.Stats, srv.Grid(), log.WithField("component", "stats"))

	log.WithFields(logrus.Fields{
		"port":   cfg.Port,
		"shards": cfg.Shards,
		"world":  fmt.Sprintf("%dx%d/%d", cfg.World.Width, cfg.World.Height, cfg.World.CellSize),
		"auth":   cfg.Auth.Secret != "",
	}).Info("starting arena server")

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("shut down")
	return nil
}
