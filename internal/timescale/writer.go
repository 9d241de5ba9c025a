package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-funding-arb/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type HealthCheck struct {
	Time                  time.Time
	Coin                  string
	State                 string
	AccountValue          decimal.Decimal
	MaintenanceMarginUsed decimal.Decimal
	Threshold             decimal.Decimal
	LiquidationPrice      decimal.NullDecimal
	MarkPrice             decimal.Decimal
	MarginWarning         bool
	LiquidationWarning    bool
}

type PnLReport struct {
	Time          time.Time
	Coin          string
	PerpPnL       decimal.Decimal
	PerpExecPrice decimal.Decimal
	SpotPnL       decimal.Decimal
	SpotExecPrice decimal.Decimal
	TotalPnL      decimal.Decimal
}

// Writer ships health checks and PnL reports to Postgres/Timescale off the
// hot path. A nil *Writer accepts and drops everything.
type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	health     chan HealthCheck
	pnl        chan PnLReport
	started    atomic.Bool
	dropHealth atomic.Uint64
	dropPnL    atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg.Schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		health: make(chan HealthCheck, queueSize),
		pnl:    make(chan PnLReport, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueHealth(check HealthCheck) {
	if w == nil {
		return
	}
	select {
	case w.health <- check:
	default:
		if w.dropHealth.Add(1) == 1 {
			w.log.Warn("timescale health queue full")
		}
	}
}

func (w *Writer) EnqueuePnL(report PnLReport) {
	if w == nil {
		return
	}
	select {
	case w.pnl <- report:
	default:
		if w.dropPnL.Add(1) == 1 {
			w.log.Warn("timescale pnl queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case check := <-w.health:
			w.writeHealth(ctx, check)
		case report := <-w.pnl:
			w.writePnL(ctx, report)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		coin TEXT NOT NULL,
		state TEXT NOT NULL,
		account_value NUMERIC NOT NULL,
		maintenance_margin_used NUMERIC NOT NULL,
		threshold NUMERIC NOT NULL,
		liquidation_price NUMERIC,
		mark_price NUMERIC NOT NULL,
		margin_warning BOOLEAN NOT NULL,
		liquidation_warning BOOLEAN NOT NULL
	)`, w.table("health_checks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		coin TEXT NOT NULL,
		perp_pnl NUMERIC NOT NULL,
		perp_exec_price NUMERIC NOT NULL,
		spot_pnl NUMERIC NOT NULL,
		spot_exec_price NUMERIC NOT NULL,
		total_pnl NUMERIC NOT NULL
	)`, w.table("pnl_reports"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"health_checks", "pnl_reports"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeHealth(ctx context.Context, check HealthCheck) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, coin, state, account_value, maintenance_margin_used, threshold,
		liquidation_price, mark_price, margin_warning, liquidation_warning
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, w.table("health_checks"))
	if _, err := w.db.ExecContext(ctx, query,
		check.Time,
		check.Coin,
		check.State,
		check.AccountValue,
		check.MaintenanceMarginUsed,
		check.Threshold,
		check.LiquidationPrice,
		check.MarkPrice,
		check.MarginWarning,
		check.LiquidationWarning,
	); err != nil {
		w.log.Warn("timescale health insert failed", zap.Error(err))
	}
}

func (w *Writer) writePnL(ctx context.Context, report PnLReport) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, coin, perp_pnl, perp_exec_price, spot_pnl, spot_exec_price, total_pnl
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("pnl_reports"))
	if _, err := w.db.ExecContext(ctx, query,
		report.Time,
		report.Coin,
		report.PerpPnL,
		report.PerpExecPrice,
		report.SpotPnL,
		report.SpotExecPrice,
		report.TotalPnL,
	); err != nil {
		w.log.Warn("timescale pnl insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
