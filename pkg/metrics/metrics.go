package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Watcher 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CycleTotal, CycleDuration, NewItemsTotal, DetailFailTotal,
		Watermark, SeenSize,
		QueueDepth, DeliveryTotal, DeliveryPartsTotal,
		RegistrySize,
		ActionTotal, GenerationDuration, ActionsInFlight,
	)
}

// CycleTotal 抓取轮次总数（按结果）
var CycleTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "watcher_crawl_cycles_total",
		Help: "抓取轮次总数",
	},
	[]string{"result"}, // ok | scan_error | aborted
)

// CycleDuration 单轮抓取耗时（秒）
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "watcher_crawl_cycle_duration_seconds",
		Help:    "单轮抓取耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// NewItemsTotal 判定为新条目的数量
var NewItemsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "watcher_new_items_total",
		Help: "判定为新条目的数量",
	},
)

// DetailFailTotal 详情拉取失败数（失败后仍标记为已见）
var DetailFailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "watcher_detail_fetch_failures_total",
		Help: "详情拉取失败数",
	},
	[]string{"kind"}, // transient | structural | other
)

// Watermark 当前 max_ordinal
var Watermark = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "watcher_watermark_max_ordinal",
		Help: "当前水位线 max_ordinal",
	},
)

// SeenSize 已见集合大小
var SeenSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "watcher_seen_set_size",
		Help: "已见集合大小",
	},
)

// QueueDepth 投递队列当前积压
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "watcher_delivery_queue_depth",
		Help: "投递队列当前积压",
	},
)

// DeliveryTotal 条目投递结果
var DeliveryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "watcher_deliveries_total",
		Help: "条目投递结果",
	},
	[]string{"result"}, // delivered | partial | failed | dropped
)

// DeliveryPartsTotal 消息分片投递数
var DeliveryPartsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "watcher_delivery_parts_total",
		Help: "消息分片投递数",
	},
	[]string{"result"}, // ok | failed
)

// RegistrySize 注册表当前条目数
var RegistrySize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "watcher_registry_size",
		Help: "注册表当前条目数",
	},
)

// ActionTotal 用户动作结果
var ActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "watcher_actions_total",
		Help: "用户动作结果",
	},
	[]string{"action", "outcome"},
)

// GenerationDuration 生成调用耗时（秒），仅统计实际调用（不含缓存命中）
var GenerationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "watcher_generation_duration_seconds",
		Help:    "生成调用耗时（秒）",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
	},
	[]string{"result"}, // ok | error
)

// ActionsInFlight 正在执行的动作数
var ActionsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "watcher_actions_in_flight",
		Help: "正在执行的动作数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
