package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uspbroker/broker/internal/broker"
	"github.com/uspbroker/broker/internal/config"
	"github.com/uspbroker/broker/internal/logging"
	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/mtp"
	"github.com/uspbroker/broker/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Broker, accepting USP Service connections and Controller requests",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "broker.yaml", "path to the Broker's YAML configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	responseTimeout, err := config.ParseTimeout(cfg.Limits.ResponseTimeout)
	if err != nil {
		return err
	}
	instanceCacheExpiry, err := config.ParseTimeout(cfg.Limits.InstanceCacheExpiry)
	if err != nil {
		return err
	}

	tables, err := store.OpenBadgerTables(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer tables.Close()

	actorCfg := broker.Config{
		EndpointID:           cfg.EndpointID,
		MaxUSPServices:       cfg.Limits.MaxUSPServices,
		MaxVendorParamGroups: cfg.Limits.MaxVendorParamGroups,
		MaxDMPath:            cfg.Limits.MaxDMPath,
		MaxMsgIDLen:          cfg.Limits.MaxMsgIDLen,
		MaxCompoundKeyParams: cfg.Limits.MaxCompoundKeyParams,
		MaxInFlightRequests:  cfg.Limits.MaxInFlightRequests,
		ResponseTimeout:      responseTimeout,
		InstanceCacheExpiry:  instanceCacheExpiry,
	}

	actor := broker.NewActor(actorCfg, logging.Logger, broker.Collaborators{
		Schema:    store.NewMemSchemaStore(),
		Perms:     store.NewMemPermissionStore(),
		ReqTable:  tables.Requests(),
		SubsTable: tables.Subscriptions(),
		InstCache: store.NewMemInstanceCache(),
	})
	go actor.Run()
	defer actor.Stop()

	listener := mtp.NewListener(cfg.Listen.Addr, actor, logging.Logger, actor.OnConnect, actor.OnDisconnect)
	go func() {
		if err := listener.Serve(); err != nil {
			logging.Logger.Error().Err(err).Msg("mtp listener stopped")
		}
	}()
	defer listener.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
			logging.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logging.Logger.Info().Str("addr", cfg.Listen.Addr).Str("endpoint", cfg.EndpointID).Msg("broker started")
	return waitForShutdown()
}

func waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Logger.Info().Str("signal", sig.String()).Msg("received shutdown signal, stopping")
	return nil
}
