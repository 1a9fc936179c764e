package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	pendingTransfersGauge  prometheus.Gauge
	transferCounter        *prometheus.CounterVec
	railRequestHistogram   *prometheus.HistogramVec
	inboundCreditCounter   *prometheus.CounterVec
	policyRejectionCounter *prometheus.CounterVec
	balanceDriftCounter    *prometheus.CounterVec
	notifyCounter          *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Accounts whose balance disagreed with their transaction history",
		}, []string{"source"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency guard outcomes",
		}, []string{"outcome"})

		pendingTransfersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_pending_transactions",
			Help: "Current number of transactions awaiting a rail outcome",
		})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_transfers_total",
			Help: "Transfer outcomes by kind",
		}, []string{"kind", "outcome"})

		railRequestHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rail_request_duration_seconds",
			Help:    "Banking rail call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"endpoint", "result"})

		inboundCreditCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_inbound_credits_total",
			Help: "Inbound credit notification outcomes",
		}, []string{"outcome"})

		policyRejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_policy_rejections_total",
			Help: "Limit policy rejections by rule",
		}, []string{"rule"})

		balanceDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_balance_reconciliations_total",
			Help: "Balance reconciliation runs by result",
		}, []string{"result"})

		notifyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_notifications_total",
			Help: "Notification publish outcomes",
		}, []string{"event", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			idempotencyCounter,
			pendingTransfersGauge,
			transferCounter,
			railRequestHistogram,
			inboundCreditCounter,
			policyRejectionCounter,
			balanceDriftCounter,
			notifyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(source string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(source).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetPendingTransactions(size int64) {
	if pendingTransfersGauge == nil {
		return
	}
	pendingTransfersGauge.Set(float64(size))
}

func IncrementTransfer(kind, outcome string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(kind, outcome).Inc()
}

func ObserveRailRequest(endpoint, result string, duration time.Duration) {
	if railRequestHistogram == nil {
		return
	}
	railRequestHistogram.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}

func IncrementInboundCredit(outcome string) {
	if inboundCreditCounter == nil {
		return
	}
	inboundCreditCounter.WithLabelValues(outcome).Inc()
}

func IncrementPolicyRejection(rule string) {
	if policyRejectionCounter == nil {
		return
	}
	policyRejectionCounter.WithLabelValues(rule).Inc()
}

func IncrementReconciliation(result string) {
	if balanceDriftCounter == nil {
		return
	}
	balanceDriftCounter.WithLabelValues(result).Inc()
}

func IncrementNotification(event, result string) {
	if notifyCounter == nil {
		return
	}
	notifyCounter.WithLabelValues(event, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
