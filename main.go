package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wfunc/crosskey/config"
	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/monitor"
	"github.com/wfunc/crosskey/persistence"
	"github.com/wfunc/crosskey/rpc"
	"github.com/wfunc/crosskey/server"
	"github.com/wfunc/crosskey/services"
	"github.com/wfunc/crosskey/tracing"
)

const releaseVersion = "0.4.0"

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := config.New()
	var configDir string

	cmd := &cobra.Command{
		Use:           "crosskey",
		Short:         "Pairs a display with a phone controller and keeps their puzzle state in sync.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configDir)
			if err != nil {
				return err
			}
			logger.Init(cfg.Verbose)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&configDir, "config", ".", "directory holding an optional config.yaml")
	cobra.CheckErr(config.BindFlags(v, fs))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("crosskey v{{.Version}}\n")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, releaseVersion)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Log.Warnf("Failed to flush traces: %v", err)
		}
	}()

	mon := monitor.NewMonitor(cfg.Monitor.Namespace)

	var (
		wg    sync.WaitGroup
		audit services.Recorder
	)
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// audit 队列在 HTTP 关闭后才停止, 保证最后的 left/closed 记录落库
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()

	store, err := persistence.Open(ctx, persistence.Options{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Postgres.Host,
		Port:     cfg.Database.Postgres.Port,
		User:     cfg.Database.Postgres.User,
		Password: cfg.Database.Postgres.Password,
		DBName:   cfg.Database.Postgres.DBName,
	})
	switch {
	case errors.Is(err, persistence.ErrDisabled):
		logger.Log.Info("Audit store disabled.")
	case err != nil:
		return err
	default:
		logger.Log.Infof("Audit store connected (%s).", cfg.Database.Driver)
		svc := services.NewAuditService(store, 0)
		svc.OnDrop(mon.IncAuditDropped)
		audit = svc

		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Run(auditCtx)
			if err := store.Close(); err != nil {
				logger.Log.Warnf("Failed to close audit store: %v", err)
			}
		}()
	}

	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		rpcServer, err = rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rpcServer.Serve(ctx); err != nil {
				logger.Log.Errorf("RPC server stopped: %v", err)
			}
		}()
	}

	srv := server.NewServer(cfg, server.Options{
		Version: releaseVersion,
		Monitor: mon,
		Audit:   audit,
	})
	err = srv.Start(ctx)
	if rpcServer != nil {
		rpcServer.SetServing(false)
	}
	cancel()
	stopAudit()
	return err
}
