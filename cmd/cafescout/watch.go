package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/events"
	"github.com/cafescout/cafescout/pkg/logging"
	"github.com/cafescout/cafescout/pkg/natsutil"
)

var watchOpts struct {
	jsonOut bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events published by runs on NATS",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOpts.jsonOut, "json", false, "print events as JSON lines")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(log) }()
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is not configured")
	}

	nc, err := natsutil.Connect(cfg.NATS.URL, "cafescout-watch")
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &printer{w: cmd.OutOrStdout(), json: watchOpts.jsonOut, verbose: true, progress: true}
	sub, err := events.Watch(nc, cfg.NATS.SubjectPrefix, func(_ context.Context, ev events.Event) {
		if err := p.print(ev); err != nil {
			log.Warn("print event", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.Info("watching", zap.String("subject", natsutil.Subject(cfg.NATS.SubjectPrefix, ">")))
	<-ctx.Done()
	return nil
}
