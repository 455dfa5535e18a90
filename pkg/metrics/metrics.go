package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 通知操作计数
	NotificationOpCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_operation_count",
			Help: "Total number of notification service operations",
		},
		[]string{"operation", "outcome"}, // outcome: ok, not_found, invalid, unavailable, error
	)

	// 通知创建计数
	NotificationCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_created_count",
			Help: "Total number of notifications created",
		},
		[]string{"category"},
	)

	// 过期清理计数
	NotificationExpiredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_expired_count",
			Help: "Total number of notifications removed by the expiry sweeper",
		},
	)

	// 未读数缓存命中
	UnreadCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_unread_cache_count",
			Help: "Unread count cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(statement string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(statement).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementNotificationOp 增加通知操作计数
func IncrementNotificationOp(operation, outcome string) {
	NotificationOpCount.WithLabelValues(operation, outcome).Inc()
}

// IncrementNotificationCreated 增加通知创建计数
func IncrementNotificationCreated(category string) {
	NotificationCreatedCount.WithLabelValues(category).Inc()
}

// AddNotificationExpired 增加过期清理计数
func AddNotificationExpired(n int64) {
	NotificationExpiredCount.Add(float64(n))
}

// IncrementUnreadCache 记录未读数缓存查询结果
func IncrementUnreadCache(result string) {
	UnreadCacheCount.WithLabelValues(result).Inc()
}
