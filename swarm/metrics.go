package swarm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors a swarm reports to.
type Metrics struct {
	Iterations      prometheus.Counter
	Evaluations     prometheus.Counter
	MutationTrials  prometheus.Counter
	MutationAccepts prometheus.Counter
	BestCost        prometheus.Gauge
	BestInfeas      prometheus.Gauge
}

// NewMetrics creates the swarm collectors and registers them with reg.  A
// nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpso",
			Name:      "iterations_total",
			Help:      "Completed swarm iterations.",
		}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpso",
			Name:      "evaluations_total",
			Help:      "Objective function evaluations.",
		}),
		MutationTrials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpso",
			Name:      "mutation_trials_total",
			Help:      "Mutation trials made by particles.",
		}),
		MutationAccepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpso",
			Name:      "mutation_accepts_total",
			Help:      "Mutation trials kept by particles.",
		}),
		BestCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cpso",
			Name:      "best_cost",
			Help:      "Cost of the global best position.",
		}),
		BestInfeas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cpso",
			Name:      "best_infeasibility",
			Help:      "Infeasibility of the global best position.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Iterations, m.Evaluations, m.MutationTrials,
			m.MutationAccepts, m.BestCost, m.BestInfeas)
	}
	return m
}

// observe pushes the progress since the previous call into the metrics.
func (it *Iterator) observe() {
	if it.Metrics == nil {
		return
	}
	m := it.Metrics

	trials, accepts := it.Pop.Mutations()
	neval := it.Neval()
	m.Iterations.Inc()
	m.Evaluations.Add(float64(neval - it.neval))
	m.MutationTrials.Add(float64(trials - it.ntrial))
	m.MutationAccepts.Add(float64(accepts - it.naccept))
	m.BestCost.Set(it.best.Cost)
	m.BestInfeas.Set(it.best.Infeas)
	it.neval, it.ntrial, it.naccept = neval, trials, accepts
}
