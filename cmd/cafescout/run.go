package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/events"
	"github.com/cafescout/cafescout/engine/pipeline"
	"github.com/cafescout/cafescout/pkg/config"
	"github.com/cafescout/cafescout/pkg/logging"
	"github.com/cafescout/cafescout/pkg/metrics"
)

var runOpts struct {
	keyword   string
	filters   []string
	aiCommand string
	maxItems  int
	batchSize int
	seedLimit int
	jsonOut   bool
	verbose   bool
	progress  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one search-filter-classify pass",
	Long: `Run searches for the configured keyword, applies keyword filters and the AI
command, and prints each post as it is found.

Interrupt once to stop after the current step; interrupt again to abort.

Examples:
  # Keyword filter only
  cafescout run -k 사고 --filter 블랙박스,접촉

  # AI relevance filter with JSON output
  CAFESCOUT_AI_API_KEY=sk-... cafescout run -k 중고차 --ai-command "실제 매물 글만" --json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.keyword, "keyword", "k", "", "search keyword (search.keyword)")
	f.StringSliceVar(&runOpts.filters, "filter", nil, "comma separated keyword filters (filter.keywords)")
	f.StringVar(&runOpts.aiCommand, "ai-command", "", "AI relevance instruction (filter.ai_command)")
	f.IntVar(&runOpts.maxItems, "max-items", 0, "maximum posts to collect (search.max_items)")
	f.IntVar(&runOpts.batchSize, "batch-size", 0, "posts per AI call, 1 for one call per post (filter.batch_size)")
	f.IntVar(&runOpts.seedLimit, "seed-limit", 0, "archived posts loaded for duplicate suppression")
	f.BoolVar(&runOpts.jsonOut, "json", false, "print events as JSON lines")
	f.BoolVarP(&runOpts.verbose, "verbose", "v", false, "print debug messages")
	f.BoolVar(&runOpts.progress, "progress", false, "print progress snapshots")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("keyword") {
		cfg.Search.Keyword = runOpts.keyword
	}
	if fl.Changed("filter") {
		cfg.Filter.Keywords = runOpts.filters
	}
	if fl.Changed("ai-command") {
		cfg.Filter.AICommand = runOpts.aiCommand
	}
	if fl.Changed("max-items") {
		cfg.Search.MaxItems = runOpts.maxItems
	}
	if fl.Changed("batch-size") {
		cfg.Filter.BatchSize = runOpts.batchSize
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(log) }()
	applyRunFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st := buildStack(ctx, cfg, log)
	defer st.close(context.Background(), log)

	var pm *pipeline.Metrics
	if cfg.Metrics.Addr != "" {
		reg := metrics.New("cafescout")
		pm = pipeline.NewMetrics(reg)
		shutdown := reg.ServeAsync(cfg.Metrics.Addr, log)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdown(sctx)
		}()
	}

	bus := events.NewBus()
	out, _ := bus.Subscribe()
	printDone := make(chan struct{})
	p := &printer{w: cmd.OutOrStdout(), json: runOpts.jsonOut, verbose: runOpts.verbose, progress: runOpts.progress}
	go func() {
		defer close(printDone)
		for ev := range out {
			if err := p.print(ev); err != nil {
				log.Warn("print event", zap.Error(err))
			}
		}
	}()

	var forwardDone chan struct{}
	if st.nc != nil {
		natsCh, _ := bus.Subscribe()
		sink := events.NewNATSSink(st.nc, cfg.NATS.SubjectPrefix, log)
		forwardDone = make(chan struct{})
		go func() {
			defer close(forwardDone)
			sink.Forward(ctx, natsCh)
		}()
	}

	deps := st.deps(cfg)
	deps.Events = bus
	deps.Metrics = pm
	deps.Logger = log
	runner := pipeline.NewRunner(pipeline.NewWorker(deps), pipeline.DefaultStopTimeout)
	st.notify = runner.Notify

	req := requestFromConfig(cfg)
	if st.archive != nil {
		idx, err := st.archive.Seed(ctx, runOpts.seedLimit)
		if err != nil {
			log.Warn("archive seed failed", zap.Error(err))
		} else {
			req.Existing = idx
			log.Info("loaded archived titles", zap.Int("titles", idx.Len()))
		}
	}

	if _, err := runner.Start(ctx, req); err != nil {
		return err
	}
	go handleInterrupts(ctx, runner, log)

	outcome, err := runner.Wait(context.Background())
	bus.Close()
	<-printDone
	if forwardDone != nil {
		<-forwardDone
	}
	if err != nil {
		return err
	}
	if !outcome.Normal() {
		return fmt.Errorf("run %s: %w", outcome.Status, outcome.Err)
	}
	return nil
}

// handleInterrupts asks the run to stop on the first signal and cancels it
// on the second.
func handleInterrupts(ctx context.Context, runner *pipeline.Runner, log *zap.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stopping := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if !stopping {
				stopping = true
				log.Info("stopping after the current step, interrupt again to abort")
				runner.Stop()
				continue
			}
			log.Warn("aborting run")
			runner.Cancel()
			return
		}
	}
}
