package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rogers-f/clash-section-engine/internal/batch"
	"github.com/rogers-f/clash-section-engine/internal/bridge"
	"github.com/rogers-f/clash-section-engine/internal/clash"
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/progress"
)

var runFlags struct {
	test     string
	statuses []string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a section viewpoint for every eligible clash of a test",
	Long: `Processes every clash of the selected test whose status is eligible and saves
one viewpoint per clash. When the export holds several tests and --test is not
given, the test is chosen interactively.

Ctrl-C stops the run after the clash in progress; viewpoints already saved
are kept.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.test, "test", "t", "", "Clash test name")
	f.StringSliceVar(&runFlags.statuses, "status", nil, "Eligible statuses (overrides eligible_statuses)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	var statuses []domain.ClashStatus
	for _, s := range runFlags.statuses {
		st, err := domain.ParseClashStatus(s)
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	cancel := &batch.CancelFlag{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			logging.New("cli").Info("cancel requested; finishing current clash")
			cancel.Cancel()
		}
	}()

	out := cmd.OutOrStdout()
	d := progress.NewDispatcher()
	last := &progress.Recorder{}
	req := bridge.ExecuteRequest{
		TestName: runFlags.test,
		Chooser:  clash.Prompt{In: cmd.InOrStdin(), Out: out},
		Statuses: statuses,
		Cancel:   cancel,
		Progress: progress.Tee(last, progress.UISink{Dispatcher: d, Display: progress.Console{Out: out}}),
	}

	var res bridge.ExecuteResult
	var runErr error
	go func() {
		defer d.Stop()
		res, runErr = s.bridge.Execute(context.Background(), req)
	}()
	d.Run()

	if runErr != nil {
		if domain.IsFatal(runErr) {
			return fmt.Errorf("run aborted: %w", runErr)
		}
		return runErr
	}

	msg := res.Summary.Message(cfg.MaxFailureDetails)
	if u, ok := last.Last(); ok && res.Summary.Cancelled {
		msg += fmt.Sprintf("\nLast clash processed: %s.", u.ItemName)
	}
	if len(res.Summary.Failed) > 0 || res.Summary.Cancelled {
		fmt.Fprintln(out, progress.FailureStyle.Render(msg))
	} else {
		fmt.Fprintln(out, progress.SuccessStyle.Render(msg))
	}
	return nil
}
