// Package metrics aggregates scheduler and judgment samples into counters,
// rates and trends for run summaries.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/maputil"
)

// MetricType 定义指标类型
type MetricType string

const (
	// Counter 计数器类型，只增不减
	Counter MetricType = "counter"
	// Gauge 仪表盘类型，记录最近值
	Gauge MetricType = "gauge"
	// Rate 比率类型，计算成功/失败比率
	Rate MetricType = "rate"
	// Trend 趋势类型，计算百分位数等统计值
	Trend MetricType = "trend"
)

// ValueType 定义值的类型
type ValueType string

const (
	// Default 默认值类型
	Default ValueType = "default"
	// Time 时间类型（毫秒）
	Time ValueType = "time"
)

// Metric 定义一个指标
type Metric struct {
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Description string     `json:"description,omitempty"`
	Contains    ValueType  `json:"contains,omitempty"`
	Sink        Sink       `json:"-"`
}

// Sample 表示单个指标样本
type Sample struct {
	Metric *Metric           `json:"metric"`
	Time   time.Time         `json:"time"`
	Value  float64           `json:"value"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Registry 管理所有已注册的指标
type Registry struct {
	metrics map[string]*Metric
	mu      sync.RWMutex
}

// NewRegistry 创建新的指标注册表
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
	}
}

// NewMetric 创建并注册新指标，同名指标直接返回已有实例
func (r *Registry) NewMetric(name string, metricType MetricType, contains ValueType, description string) *Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		return m
	}

	m := &Metric{
		Name:        name,
		Type:        metricType,
		Description: description,
		Contains:    contains,
		Sink:        NewSink(metricType),
	}
	r.metrics[name] = m
	return m
}

// Get 获取已注册的指标
func (r *Registry) Get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Names 返回按名称排序的指标名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := maputil.Keys(r.metrics)
	sort.Strings(names)
	return names
}
