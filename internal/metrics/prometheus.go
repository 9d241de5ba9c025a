package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_funding_arb"

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	fundingPolls   prometheus.Counter
	cycleErrors    prometheus.Counter
	hedgesOpened   prometheus.Counter
	hedgesClosed   prometheus.Counter
	partialHedges  prometheus.Counter
	healthChecks   prometheus.Counter
	healthWarnings prometheus.Counter
	ordersPlaced   prometheus.Counter
	ordersFailed   prometheus.Counter
	fundingRate    prometheus.Gauge
	totalPnL       prometheus.Gauge
	hedged         prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:       prometheus.NewRegistry(),
		fundingPolls:   newCounter("funding_polls_total", "Total number of funding rate polls."),
		cycleErrors:    newCounter("cycle_errors_total", "Total number of failed funding or health cycles."),
		hedgesOpened:   newCounter("hedges_opened_total", "Total number of hedges opened."),
		hedgesClosed:   newCounter("hedges_closed_total", "Total number of hedges closed."),
		partialHedges:  newCounter("partial_hedges_total", "Total number of hedge transitions that stopped after one leg."),
		healthChecks:   newCounter("health_checks_total", "Total number of account health checks."),
		healthWarnings: newCounter("health_warnings_total", "Total number of margin or liquidation warnings."),
		ordersPlaced:   newCounter("orders_placed_total", "Total number of orders placed."),
		ordersFailed:   newCounter("orders_failed_total", "Total number of order placement failures."),
		fundingRate:    newGauge("funding_rate", "Last polled funding rate."),
		totalPnL:       newGauge("total_pnl_usd", "Last estimated PnL of both legs in USD."),
		hedged:         newGauge("hedged", "1 while the hedge is open, 0 when flat."),
	}
	p.registry.MustRegister(
		p.fundingPolls, p.cycleErrors, p.hedgesOpened, p.hedgesClosed, p.partialHedges,
		p.healthChecks, p.healthWarnings, p.ordersPlaced, p.ordersFailed,
		p.fundingRate, p.totalPnL, p.hedged,
	)
	p.Metrics = &Metrics{
		FundingPolls:   p.fundingPolls,
		CycleErrors:    p.cycleErrors,
		HedgesOpened:   p.hedgesOpened,
		HedgesClosed:   p.hedgesClosed,
		PartialHedges:  p.partialHedges,
		HealthChecks:   p.healthChecks,
		HealthWarnings: p.healthWarnings,
		OrdersPlaced:   p.ordersPlaced,
		OrdersFailed:   p.ordersFailed,
		FundingRate:    p.fundingRate,
		TotalPnL:       p.totalPnL,
		Hedged:         p.hedged,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
