package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	serdeMetricSubsystem = "serde"

	// op 标签取值
	SerializeLabel   = "serialize"
	DeserializeLabel = "deserialize"
)

var (
	serdeMetricsRegisterOnce sync.Once

	SerdeBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: zeusNamespace,
		Subsystem: serdeMetricSubsystem,
		Name:      "payload_bytes",
		Help:      "单次序列化输出或反序列化输入的字节数",
		Buckets:   sizeBuckets,
	}, []string{opLabelName})

	SerdeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: zeusNamespace,
		Subsystem: serdeMetricSubsystem,
		Name:      "latency_ms",
		Help:      "单次序列化或反序列化的耗时（毫秒）",
		Buckets:   buckets,
	}, []string{opLabelName})

	SerdeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: zeusNamespace,
		Subsystem: serdeMetricSubsystem,
		Name:      "errors_total",
		Help:      "按错误码统计的序列化失败次数",
	}, []string{opLabelName, codeLabelName})

	SerdeSchemaCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: zeusNamespace,
		Subsystem: serdeMetricSubsystem,
		Name:      "schema_cache_size",
		Help:      "已缓存的结构体属性描述个数",
	})
)

// RegisterSerdeMetrics 将序列化相关的指标注册到 Registerer 中，只生效一次。
func RegisterSerdeMetrics(r prometheus.Registerer) {
	serdeMetricsRegisterOnce.Do(func() {
		r.MustRegister(SerdeBytes)
		r.MustRegister(SerdeLatency)
		r.MustRegister(SerdeErrors)
		r.MustRegister(SerdeSchemaCacheSize)
	})
}

// NewPagePoolCollector 返回读取页缓存命中统计的 Collector。
func NewPagePoolCollector(stats func() (hits, misses int64)) prometheus.Collector {
	return &pagePoolCollector{
		stats: stats,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(zeusNamespace, serdeMetricSubsystem, "page_pool_hits_total"),
			"从页缓存取得页的次数", nil, nil),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(zeusNamespace, serdeMetricSubsystem, "page_pool_misses_total"),
			"页缓存为空时新分配页的次数", nil, nil),
	}
}

type pagePoolCollector struct {
	stats  func() (int64, int64)
	hits   *prometheus.Desc
	misses *prometheus.Desc
}

func (c *pagePoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
}

func (c *pagePoolCollector) Collect(ch chan<- prometheus.Metric) {
	hits, misses := c.stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses))
}
