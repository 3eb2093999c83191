package cmd

import (
	"context"
	"errors"
	"notesync/internal/config"
	"notesync/internal/infra/redisq"
	"notesync/internal/worker"
	"notesync/pkg/logger"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func tailCmd() *cobra.Command {
	var (
		from   string
		target string
		noTrim bool
	)

	var command = &cobra.Command{
		Use:   "tail",
		Short: "Follow the sync status journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			l := logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = l.WithContext(ctx)

			cli := redisq.New(cfg.Redis)
			defer cli.Close()
			if err := cli.Connect(ctx); err != nil {
				return err
			}

			wcfg := worker.Config{
				From:         from,
				Target:       target,
				Retention:    cfg.Journal.Retention,
				TrimSchedule: cfg.Journal.TrimSchedule,
			}
			if noTrim {
				wcfg.TrimSchedule = ""
			}

			err := worker.Relay{J: redisq.NewJournal(cli, cfg.Journal), Cfg: wcfg}.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	command.Flags().StringVar(&from, "from", "$", `Journal position to start from ("0" replays all)`)
	command.Flags().StringVar(&target, "note", "", "Only show transitions for this note id")
	command.Flags().BoolVar(&noTrim, "no-trim", false, "Do not trim old journal entries")

	return command
}
