package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeOK 正常响应
	OutcomeOK = "ok"
	// OutcomeError 网络层失败
	OutcomeError = "error"
)

var (
	capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewardwatch",
			Name:      "captures_total",
			Help:      "Captured target calls, partitioned by transport and outcome.",
		},
		[]string{"transport", "outcome"},
	)

	decodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewardwatch",
			Name:      "decodes_total",
			Help:      "Decoded response bodies, partitioned by the envelope layer that failed (empty when decoded).",
		},
		[]string{"mismatch"},
	)

	recordsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewardwatch",
			Name:      "records_upserted_total",
			Help:      "App records written into the store.",
		},
	)

	storeSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rewardwatch",
			Name:      "store_apps",
			Help:      "Distinct apps currently held in the store.",
		},
	)

	bridgeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewardwatch",
			Name:      "bridge_dropped_total",
			Help:      "Captured calls dropped because a subscriber buffer was full.",
		},
	)
)

// Register 将采集器注册到指定 Registerer，重复注册忽略
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		capturesTotal,
		decodesTotal,
		recordsUpserted,
		storeSize,
		bridgeDropped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCapture 记录一次捕获
func ObserveCapture(transport string, failed bool) {
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeError
	}
	capturesTotal.WithLabelValues(transport, outcome).Inc()
}

// ObserveDecode 记录一次解码结果及写入的记录数
func ObserveDecode(mismatch string, upserted int) {
	decodesTotal.WithLabelValues(mismatch).Inc()
	if upserted > 0 {
		recordsUpserted.Add(float64(upserted))
	}
}

func SetStoreSize(n int) { storeSize.Set(float64(n)) }

func IncBridgeDropped() { bridgeDropped.Inc() }
