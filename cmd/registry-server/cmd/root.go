package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jet-lab/lookup-table-registry-go/cache"
	"github.com/jet-lab/lookup-table-registry-go/client"
	"github.com/jet-lab/lookup-table-registry-go/metrics"
	"github.com/jet-lab/lookup-table-registry-go/rpc"
	"github.com/jet-lab/lookup-table-registry-go/server"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

var log zerolog.Logger

var rootCmd = &cobra.Command{
	Use:   "registry-server",
	Short: "Serve lookup table registry resolution over HTTP",
	RunE:  run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("endpoint", "", "JSON-RPC endpoint of the ledger node")
	rootCmd.Flags().String("program-id", "", "address of the lookup table registry program")
	rootCmd.Flags().String("listen-addr", ":3006", "address the API server listens on")
	rootCmd.Flags().Int("cache-capacity", cache.DefaultCapacity, "most registries kept in the resolution cache")
	rootCmd.Flags().Duration("cache-ttl", cache.DefaultTTL, "how long a cached registry stays fresh")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindEnv("endpoint", "SOLANA_ENDPOINT")
	_ = viper.BindEnv("program-id", "REGISTRY_PROGRAM_ID")
	_ = viper.BindEnv("listen-addr", "LISTEN_ADDR")
	viper.AutomaticEnv()
}

func run(*cobra.Command, []string) error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log = log.Level(level)

	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		return errors.New("no ledger endpoint configured, set --endpoint or SOLANA_ENDPOINT")
	}
	programID, err := solana.PublicKeyFromBase58(viper.GetString("program-id"))
	if err != nil {
		return fmt.Errorf("invalid registry program id: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node := rpc.NewClient(log, endpoint)
	registryClient, err := client.New(log, metrics.NewRegistryCollector(), node, programID,
		client.WithCacheCapacity(viper.GetInt("cache-capacity")),
		client.WithCacheTTL(viper.GetDuration("cache-ttl")),
	)
	if err != nil {
		return fmt.Errorf("could not create registry client: %w", err)
	}
	defer func() {
		_ = registryClient.Close()
	}()

	srv := server.NewServer(log, registryClient, node, viper.GetString("listen-addr"))

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msg("lookup API server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
