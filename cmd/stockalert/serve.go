package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"stockalert/internal/app"
	logx "stockalert/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and trigger the batch at the configured time",
		Long: `Serve runs until SIGINT or SIGTERM and triggers the batch on the
configured schedule. SIGUSR1 starts a batch immediately unless one is already
queued or running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, ctx *commandContext) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	triggerCh := make(chan os.Signal, 1)
	if len(triggerSignals) > 0 {
		signal.Notify(triggerCh, triggerSignals...)
		defer signal.Stop(triggerCh)
	}

	a, err := app.New(parent, app.Options{ConfigPath: ctx.env.ConfigPath, Env: ctx.env})
	if err != nil {
		return err
	}
	log := a.Logger()
	if err := a.Start(parent); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		log.Debug("systemd notified ready")
	}

	reason := app.StopUnknown
wait:
	for {
		select {
		case <-triggerCh:
			if err := a.TriggerBatch(); err != nil {
				log.Warn("manual trigger rejected", logx.Err(err))
				continue
			}
			log.Info("batch triggered by signal")
		case sig := <-sigCh:
			reason = app.StopSIGTERM
			if sig == syscall.SIGINT {
				reason = app.StopSIGINT
			}
			break wait
		case <-a.Done():
			reason = app.StopFatalError
			break wait
		case <-parent.Done():
			reason = app.StopAppStop
			break wait
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	fatal := a.Err()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return fatal
}
