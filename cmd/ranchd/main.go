package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/logging"
	"pumpelf.ai/internal/metrics"
	persistlog "pumpelf.ai/internal/persistence/log"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/ranch"
	"pumpelf.ai/internal/sim/tuning"
)

func main() {
	var (
		worldID    = flag.String("world", "ranch_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		input      = flag.String("input", "-", "JSONL command file (- for stdin)")
		storeKind  = flag.String("store", "memory", "player store: memory|sqlite|postgres")
		pgDSN      = flag.String("postgres_dsn", "", "postgres dsn (or set RANCH_POSTGRES_DSN)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the latest snapshot and journal in the data dir (when -snapshot is empty)")

		metricsAddr = flag.String("metrics_addr", "", "serve /metrics and /healthz on this address (empty to disable)")
	)
	flag.Parse()

	logger := logging.FromEnv()
	log := logger.WithField("world", *worldID)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("load catalogs")
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Fatal("load tuning")
		}
		log.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		log.WithError(err).Fatal("create world dir")
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, durable, closeStore, err := openStore(ctx, *storeKind, worldDir, strings.TrimSpace(*pgDSN))
	if err != nil {
		log.WithError(err).Fatal("open player store")
	}
	defer closeStore()

	idx, err := openIndex(worldDir, *disableDB)
	if err != nil {
		log.WithError(err).Fatal("open index")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			log.WithError(err).Warn("index: upsert catalogs")
		}
	}

	mirror, err := openMirror(ctx, *dataDir, logger)
	if err != nil {
		log.WithError(err).Fatal("init s3 mirror")
	}
	defer mirror.Close()

	m := metrics.New(*worldID)
	eng, err := ranch.New(ranch.Config{WorldID: *worldID, Tuning: tune}, cats,
		ranch.WithStore(st),
		ranch.WithLogger(log),
		ranch.WithObserver(m),
	)
	if err != nil {
		log.WithError(err).Fatal("engine")
	}

	journal := persistlog.NewJournal(worldDir)
	defer journal.Close()

	rt := &runtime{
		eng:      eng,
		journal:  journal,
		idx:      idx,
		mirror:   mirror,
		worldDir: worldDir,
		log:      log,
	}
	if *snapPath != "" || *loadLatest {
		if err := rt.resume(strings.TrimSpace(*snapPath), !durable); err != nil {
			log.WithError(err).Fatal("resume")
		}
	}

	if *metricsAddr != "" {
		registerRuntimeGauges(m, rt, log)
		srv := startMetricsServer(*metricsAddr, m, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.WithError(err).Fatal("open input")
		}
		defer f.Close()
		in = f
	}

	runErr := rt.run(ctx, in, os.Stdout)
	if err := rt.checkpoint(); err != nil {
		log.WithError(err).Error("final snapshot")
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.WithError(runErr).Error("run stopped")
		return
	}
	log.WithFields(logrus.Fields{"tick": eng.Tick(), "seq": rt.seq}).Info("done")
}

func registerRuntimeGauges(m *metrics.Metrics, rt *runtime, log logrus.FieldLogger) {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"ranch_journal_seq", "Last journal sequence number.", func() float64 { return float64(rt.seq) }},
		{"ranch_index_queue_depth", "Index writer backlog.", func() float64 { return float64(rt.idx.Stats().QueueDepth) }},
		{"ranch_index_dropped_total", "Index rows dropped because the queue was full.", func() float64 {
			s := rt.idx.Stats()
			return float64(s.DropCommandTotal + s.DropSnapshotTotal)
		}},
		{"ranch_mirror_queue_depth", "Pending snapshot uploads.", func() float64 { return float64(rt.mirror.Stats().QueueDepth) }},
		{"ranch_mirror_upload_fail_total", "Failed snapshot uploads.", func() float64 { return float64(rt.mirror.Stats().UploadFailTotal) }},
	}
	for _, g := range gauges {
		if err := m.GaugeFunc(g.name, g.help, g.fn); err != nil {
			log.WithError(err).WithField("metric", g.name).Warn("register gauge")
		}
	}
}

func startMetricsServer(addr string, m *metrics.Metrics, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	return srv
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
