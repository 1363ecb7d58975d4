package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteBurned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_paste_burned_total",
		Help: "no. of burn-after-read pastes consumed",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_paste_deleted_total",
		Help: "no. of pastes deleted via delete key or owner",
	})
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punt_quota_rejections_total",
			Help: "no. of requests rejected by quota",
		},
		[]string{"op"},
	)
	TokenIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_token_issued_total",
		Help: "no. of bearer tokens issued",
	})
	TokenRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_token_revoked_total",
		Help: "no. of bearer tokens revoked",
	})
	DeviceCodeCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_device_code_created_total",
		Help: "no. of device codes created",
	})
	DeviceCodeApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_device_code_approved_total",
		Help: "no. of device codes approved",
	})
	DeviceCodeConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_device_code_consumed_total",
		Help: "no. of device codes consumed by poll",
	})
	CredCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_cred_cache_hits_total",
		Help: "no. of credential cache hits",
	})
	CredCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_cred_cache_misses_total",
		Help: "no. of credential cache misses",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punt_sweep_cycles_total",
		Help: "no. of sweeper cycles",
	})
	SweptRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punt_swept_rows_total",
			Help: "no. of expired rows removed by the sweeper",
		},
		[]string{"table"},
	)
)

func Init() {
}
