package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockalert/internal/app"
	"stockalert/internal/dispatch"
	"stockalert/internal/mail"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch now and exit",
		Long: `Run evaluates every eligible recipient once, delivers the composed
digests and prints a summary. It exits non-zero when the recipient query
fails or another batch holds the run lock. Individual delivery failures are
reported in the summary but do not change the exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), ctx, dryRun, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate and compose without delivering")
	return cmd
}

func runOnce(parent context.Context, ctx *commandContext, dryRun bool, w io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(sigCtx, app.Options{ConfigPath: ctx.env.ConfigPath, Env: ctx.env, DryRun: dryRun})
	if err != nil {
		return err
	}
	defer a.Stop(context.Background(), app.StopAppStop)

	out, err := a.RunBatch(sigCtx)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	fmt.Fprintln(w, renderOutcome(out))
	if dryRun {
		fmt.Fprintln(w, renderRecorded(a.Recorded()))
	}
	return nil
}

func renderOutcome(out dispatch.Outcome) string {
	rows := [][]string{
		{"Run", out.RunID},
		{"Started", out.Started.Format("2006-01-02 15:04:05 MST")},
		{"Duration", out.Duration.Round(time.Millisecond).String()},
		{"Recipients", fmt.Sprint(out.Recipients)},
		{"Sent", fmt.Sprint(out.Sent)},
		{"Skipped", fmt.Sprint(out.Skipped)},
		{"Failed", fmt.Sprint(out.Failed)},
	}
	if out.DryRun {
		rows = append(rows, []string{"Mode", "dry run (nothing delivered)"})
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderRecorded(msgs []mail.Params) string {
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, []string{m.SendTo, m.Subject, fmt.Sprint(len(m.BodyHTML))})
	}
	return renderTable([]string{"To", "Subject", "HTML bytes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}
