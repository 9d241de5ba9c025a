package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	FundingPolls   Counter
	CycleErrors    Counter
	HedgesOpened   Counter
	HedgesClosed   Counter
	PartialHedges  Counter
	HealthChecks   Counter
	HealthWarnings Counter
	OrdersPlaced   Counter
	OrdersFailed   Counter

	FundingRate Gauge
	TotalPnL    Gauge
	Hedged      Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		FundingPolls:   n,
		CycleErrors:    n,
		HedgesOpened:   n,
		HedgesClosed:   n,
		PartialHedges:  n,
		HealthChecks:   n,
		HealthWarnings: n,
		OrdersPlaced:   n,
		OrdersFailed:   n,
		FundingRate:    g,
		TotalPnL:       g,
		Hedged:         g,
	}
}
