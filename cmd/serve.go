package cmd

import (
	"context"
	"errors"
	"notesync/internal/api"
	"notesync/internal/config"
	"notesync/internal/infra/redisq"
	"notesync/internal/metrics"
	"notesync/internal/syncq"
	"notesync/internal/usecase"
	"notesync/pkg/backoff"
	"notesync/pkg/logger"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the sync queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Setup(cfg.Log.Level, cfg.Log.Pretty)
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			return serve(cfg)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := redisq.New(cfg.Redis)
	defer cli.Close()
	if err := cli.Connect(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// the queue keeps running its backlog after ctx ends; it gets its own context
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()

	delay := backoff.Doubling(cfg.Sync.BaseDelay)
	if cfg.Sync.Jitter {
		delay = backoff.Jittered(cfg.Sync.BaseDelay, cfg.Sync.MaxDelay)
	}
	opts := []syncq.Option{
		syncq.WithContext(queueCtx),
		syncq.WithMaxAttempts(cfg.Sync.MaxAttempts),
		syncq.WithBackoff(delay),
		syncq.WithLogger(log.Logger.With().Str("component", "syncq").Logger()),
	}

	var sinkDone chan error
	sinkCtx, cancelSink := context.WithCancel(context.Background())
	defer cancelSink()
	if cfg.Journal.Enabled {
		sink := usecase.NewJournalSink(redisq.NewJournal(cli, cfg.Journal), cfg.Journal.Buffer)
		opts = append(opts, syncq.WithObserver(sink.Observe))
		sinkDone = make(chan error, 1)
		go func() { sinkDone <- sink.Run(sinkCtx) }()
	}

	var q *syncq.Queue
	rec := metrics.New(reg, func() int { return q.Len() })
	q = syncq.New(append(opts, syncq.WithObserver(rec.Observe))...)

	notes := usecase.Notes{Q: q, Store: cli}
	server := api.NewServer(notes, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	err := server.Run(ctx, cfg.HTTP)

	log.Info().Int("queued", q.Len()).Msg("draining sync queue")
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancelDrain()
	if derr := q.Drain(drainCtx); derr != nil {
		log.Warn().Err(derr).Int("queued", q.Len()).Msg("sync queue not drained, pending changes are lost")
		cancelQueue()
	}

	if sinkDone != nil {
		cancelSink()
		if serr := <-sinkDone; serr != nil && !errors.Is(serr, context.Canceled) {
			log.Error().Err(serr).Msg("journal sink stopped")
		}
	}
	return err
}
