package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout commit outcomes.
	CheckoutTotal *prometheus.CounterVec
	// ReturnApprovalTotal counts return approval decision outcomes.
	ReturnApprovalTotal *prometheus.CounterVec
	// StockConflictTotal counts stock shortages detected at commit time.
	StockConflictTotal prometheus.Counter
	// ReconciliationFlagTotal counts reconciliation flags raised after uncertain commits.
	ReconciliationFlagTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		ReturnApprovalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_approval_total",
			Help:      "Count of return approval decisions by outcome.",
		}, []string{"outcome"})
		StockConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_conflict_total",
			Help:      "Number of commits rejected because stock ran out between cart and commit.",
		})
		ReconciliationFlagTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_flag_total",
			Help:      "Number of reconciliation flags raised for uncertain commit outcomes.",
		})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, ReturnApprovalTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReturnApprovalTotal = v
			}
		})
		mustRegisterCollector(reg, StockConflictTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockConflictTotal = v
			}
		})
		mustRegisterCollector(reg, ReconciliationFlagTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReconciliationFlagTotal = v
			}
		})
	})
}

// IncCheckout records a checkout outcome. Safe to call before registration.
func IncCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// IncReturnApproval records a return approval outcome. Safe to call before registration.
func IncReturnApproval(outcome string) {
	if ReturnApprovalTotal != nil {
		ReturnApprovalTotal.WithLabelValues(outcome).Inc()
	}
}

// IncStockConflict records a commit-time stock shortage. Safe to call before registration.
func IncStockConflict() {
	if StockConflictTotal != nil {
		StockConflictTotal.Inc()
	}
}

// IncReconciliationFlag records a raised reconciliation flag. Safe to call before registration.
func IncReconciliationFlag() {
	if ReconciliationFlagTotal != nil {
		ReconciliationFlagTotal.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
