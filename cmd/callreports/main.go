package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"call-reports-go/internal/aggregator"
	"call-reports-go/internal/artifacts"
	"call-reports-go/internal/config"
	"call-reports-go/internal/confidence"
	"call-reports-go/internal/logger"
	"call-reports-go/internal/queue"
	"call-reports-go/internal/reports"
	"call-reports-go/internal/store"
	"call-reports-go/internal/types"
)

const usage = `usage: callreports <command> [flags]

commands:
  aggregate  -tenant T [-from YYYY-MM-DD] [-to YYYY-MM-DD]   run weekly aggregation for one tenant
  artifacts  -report R                                        generate document + spreadsheet for one report
  enforce    [-threshold 0.6]                                 revert low-confidence categorizations
  override   -call N -category C [-subcategory S] [-label L]  manually pin a call's category
  view       -report R                                        print the report view as JSON
  worker                                                      run the background artifact worker
`

type app struct {
	cfg      config.Config
	log      *logger.Logger
	store    *store.Store
	service  *reports.Service
	genie    *artifacts.Generator
	enforcer *confidence.Enforcer
	validate *validator.Validate
}

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-reports-go").Info("starting")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("opening store failed")
	}
	defer st.Close()

	agg := aggregator.New(st, st, cfg.PageSize, log)
	a := &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		service: reports.NewService(agg, st, st, st, log),
		genie: artifacts.NewGenerator(st, artifacts.NewFileBlobStore(cfg.ArtifactsDir), log,
			cfg.Artifacts.MaxAttempts, time.Duration(cfg.Artifacts.AttemptTimeoutSec)*time.Second),
		enforcer: confidence.New(st, log),
		validate: validator.New(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "aggregate":
		err = a.runAggregate(ctx, os.Args[2:])
	case "artifacts":
		err = a.runArtifacts(ctx, os.Args[2:])
	case "enforce":
		err = a.runEnforce(ctx, os.Args[2:])
	case "override":
		err = a.runOverride(ctx, os.Args[2:])
	case "view":
		err = a.runView(ctx, os.Args[2:])
	case "worker":
		err = a.runWorker(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

type aggregateRequest struct {
	TenantID string `validate:"required"`
	From     string `validate:"omitempty,datetime=2006-01-02"`
	To       string `validate:"omitempty,datetime=2006-01-02"`
}

func (a *app) runAggregate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	fromArg := fs.String("from", "", "regenerate from date (YYYY-MM-DD, inclusive)")
	toArg := fs.String("to", "", "regenerate to date (YYYY-MM-DD, exclusive)")
	fs.Parse(args)

	req := aggregateRequest{TenantID: *tenant, From: *fromArg, To: *toArg}
	if err := a.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid aggregate request: %w", err)
	}
	from, err := parseDate(req.From)
	if err != nil {
		return err
	}
	to, err := parseDate(req.To)
	if err != nil {
		return err
	}

	jobCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Worker.JobTimeoutSec)*time.Second)
	defer cancel()

	reps, err := a.service.Run(jobCtx, req.TenantID, from, to)
	if err != nil {
		return err
	}
	for _, rep := range reps {
		a.log.WithField("report_id", rep.ID).
			WithField("week_start", rep.WeekStart).
			WithField("total_calls", rep.TotalCalls).
			Info("report ready")
	}
	return nil
}

type artifactsRequest struct {
	ReportID string `validate:"required,uuid4"`
}

func (a *app) runArtifacts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("artifacts", flag.ExitOnError)
	report := fs.String("report", "", "report id")
	fs.Parse(args)

	req := artifactsRequest{ReportID: *report}
	if err := a.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid artifacts request: %w", err)
	}
	return a.genie.Generate(ctx, req.ReportID)
}

func (a *app) runEnforce(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enforce", flag.ExitOnError)
	threshold := fs.Float64("threshold", a.cfg.ConfidenceThreshold, "minimum confidence to keep an automatic categorization")
	fs.Parse(args)

	n, err := a.enforcer.EnforceThreshold(ctx, *threshold)
	if err != nil {
		return err
	}
	a.log.WithField("calls_reset", n).Info("confidence sweep done")
	return nil
}

func (a *app) runOverride(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("override", flag.ExitOnError)
	callID := fs.Int64("call", 0, "call id")
	category := fs.Int64("category", 0, "category id")
	subCategory := fs.Int64("subcategory", 0, "sub-category id (optional)")
	label := fs.String("label", "", "free-text sub-category label (optional)")
	fs.Parse(args)

	if *callID <= 0 {
		return fmt.Errorf("missing -call")
	}
	if *category <= 0 {
		return fmt.Errorf("missing -category")
	}
	var subID *int64
	if *subCategory > 0 {
		subID = subCategory
	}
	return a.enforcer.ManualOverride(ctx, *callID, category, subID, *label)
}

func (a *app) runView(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	report := fs.String("report", "", "report id")
	fs.Parse(args)
	if *report == "" {
		return fmt.Errorf("missing -report")
	}

	view, err := a.service.ReportView(ctx, *report)
	if err != nil {
		return err
	}
	if view == nil {
		return fmt.Errorf("report %s not found", *report)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// runWorker scans for reports awaiting artifacts and feeds them to the pool.
// One failed report never blocks the rest of the batch.
func (a *app) runWorker(ctx context.Context) error {
	w := a.cfg.Worker
	q := queue.New(w.QueueSize, w.WorkerCount, time.Duration(w.JobTimeoutSec)*time.Second,
		a.log.WithComponent("queue"))
	q.Start(ctx)

	log := a.log.WithComponent("worker")
	log.WithField("interval_sec", w.ScanIntervalSec).Info("worker loop started")

	ticker := time.NewTicker(time.Duration(w.ScanIntervalSec) * time.Second)
	defer ticker.Stop()

	a.scanOnce(ctx, q)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker loop stopping")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			q.Stop(stopCtx)
			cancel()
			return nil
		case <-ticker.C:
			a.scanOnce(ctx, q)
		}
	}
}

// scanOnce refreshes every tenant's aggregates and feeds reports awaiting
// artifacts to the pool. The queue's key dedupe keeps at most one aggregation
// per tenant and one generation per report in flight.
func (a *app) scanOnce(ctx context.Context, q *queue.Queue) {
	log := a.log.WithComponent("worker")

	tenants, err := a.store.TenantIDs(ctx)
	if err != nil {
		log.WithError(err).Error("scanning tenants failed")
	}
	for _, tenantID := range tenants {
		tenantID := tenantID
		q.Enqueue(queue.Job{
			ID:   uuid.New().String(),
			Kind: queue.KindAggregate,
			Key:  tenantID,
			Work: func(jobCtx context.Context) error {
				_, err := a.service.Run(jobCtx, tenantID, nil, nil)
				return err
			},
		})
	}

	pending, err := a.store.ListReportsByStatus(ctx, types.StatusPending, a.cfg.Worker.BatchSize)
	if err != nil {
		log.WithError(err).Error("scanning pending reports failed")
		return
	}
	for _, rep := range pending {
		reportID := rep.ID
		q.Enqueue(queue.Job{
			ID:   uuid.New().String(),
			Kind: queue.KindArtifacts,
			Key:  reportID,
			Work: func(jobCtx context.Context) error {
				return a.genie.Generate(jobCtx, reportID)
			},
		})
	}
	if len(tenants) > 0 || len(pending) > 0 {
		log.WithField("tenants", len(tenants)).
			WithField("pending_reports", len(pending)).
			Debug("scan complete")
	}
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", v, err)
	}
	t = t.UTC()
	return &t, nil
}
