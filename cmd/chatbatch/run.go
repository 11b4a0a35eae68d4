package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/chatbatch/pkg/batch"
	"github.com/aixgo-dev/chatbatch/pkg/chat"
	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
	"github.com/aixgo-dev/chatbatch/pkg/client"
)

var errIncomplete = errors.New("batch incomplete")

func newRunCmd(a *app) *cobra.Command {
	var (
		input    string
		system   string
		reset    bool
		dry      bool
		schedule string
		store    storeFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Complete one assistant turn for every conversation in the input",
		Long: `Reads conversations from --input, one per line: a JSON string is a prompt,
a JSON array is a list of {role, content} messages. Completed conversations
are appended to the checkpoint; re-running resumes where the last run stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			completer, err := a.completer()
			if err != nil {
				return err
			}
			st, err := a.openStore(store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			load := func() ([]*chat.Log, error) { return loadInput(input, system) }
			out := cmd.OutOrStdout()

			if dry {
				return a.prepareOnly(cmd.Context(), out, load, completer, st, reset)
			}

			once := func(ctx context.Context, clearFirst bool) (bool, error) {
				return a.runOnce(ctx, out, load, completer, st, clearFirst)
			}
			if schedule != "" {
				return runScheduled(cmd.Context(), a.logger, schedule, once, reset)
			}

			done, err := once(cmd.Context(), reset)
			if err != nil {
				return err
			}
			if !done {
				return errIncomplete
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&input, "input", "-", "input file of conversations, - for stdin")
	flags.StringVar(&system, "system", "", "system prompt prepended to plain string prompts")
	flags.BoolVar(&reset, "clear", false, "discard the existing checkpoint first")
	flags.BoolVar(&dry, "dry", false, "report what the run would do without sending requests or touching the checkpoint")
	flags.StringVar(&schedule, "schedule", "", "cron spec (e.g. \"@every 10m\") to retry until every conversation is complete")
	store.register(cmd)

	return cmd
}

func loadInput(path, system string) ([]*chat.Log, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()
	return readConversations(in, promptTemplate(system))
}

// prepareOnly validates the run and reports what it would do. It never
// modifies the checkpoint, even with --clear.
func (a *app) prepareOnly(ctx context.Context, out io.Writer, load func() ([]*chat.Log, error), c client.Completer, st checkpoint.Store, reset bool) error {
	logs, err := load()
	if err != nil {
		return err
	}
	job, err := batch.Prepare(ctx, logs, c, st, a.batchConfig(false), batch.WithLogger(a.logger))
	if err != nil {
		return err
	}

	pending := len(logs)
	if !reset {
		view, err := checkpoint.LoadStoreView(ctx, st)
		if err != nil {
			return err
		}
		pending = 0
		for i := range logs {
			if !view.Done(i) {
				pending++
			}
		}
	}

	note := ""
	if reset {
		note = " (checkpoint would be cleared)"
	}
	_, err = fmt.Fprintf(out, "prepared run %s: %d conversations, %d pending%s\n", job.ID(), len(logs), pending, note)
	return err
}

func (a *app) runOnce(ctx context.Context, out io.Writer, load func() ([]*chat.Log, error), c client.Completer, st checkpoint.Store, reset bool) (bool, error) {
	logs, err := load()
	if err != nil {
		return false, err
	}
	d, err := batch.New(c, st, a.batchConfig(reset), batch.WithLogger(a.logger))
	if err != nil {
		return false, err
	}
	report, err := d.Run(ctx, logs)
	if err != nil {
		return false, err
	}

	counts := report.Counts()
	_, err = fmt.Fprintf(out, "run %s: %d completed, %d failed, %d skipped of %d\n",
		report.RunID, counts[batch.StatusCompleted], len(report.Failed()), len(report.Skipped), report.Total)
	if err != nil {
		return false, err
	}
	if failed := report.Failed(); len(failed) > 0 {
		a.logger.Info("Conversations left for the next run", zap.Ints("indices", failed))
	}
	return report.Done(), nil
}
