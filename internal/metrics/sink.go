package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sink 定义指标聚合器接口
type Sink interface {
	// Add 添加一个样本值
	Add(sample Sample)
	// Format 返回格式化的统计结果
	Format(duration float64) map[string]float64
	// IsEmpty 检查是否为空
	IsEmpty() bool
}

// NewSink 根据指标类型创建对应的 Sink
func NewSink(metricType MetricType) Sink {
	switch metricType {
	case Counter:
		return &CounterSink{}
	case Gauge:
		return &GaugeSink{}
	case Rate:
		return &RateSink{}
	case Trend:
		return NewTrendSink()
	default:
		return &CounterSink{}
	}
}

// moments 记录样本的数量、总和与极值，调用方负责加锁
type moments struct {
	n        int64
	sum      float64
	min, max float64
}

func (m *moments) observe(v float64) {
	if m.n == 0 || v < m.min {
		m.min = v
	}
	if m.n == 0 || v > m.max {
		m.max = v
	}
	m.n++
	m.sum += v
}

func (m *moments) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// CounterSink 累加样本值，例如命中次数或返还的资源
type CounterSink struct {
	mu    sync.Mutex
	total float64
	// largest 单个样本的最大增量
	largest float64
	samples int64
}

// Add 累加样本
func (c *CounterSink) Add(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += sample.Value
	if c.samples == 0 || sample.Value > c.largest {
		c.largest = sample.Value
	}
	c.samples++
}

// Format reports the total, the number of samples, the largest single
// increment and, for a positive duration, the total per second.
func (c *CounterSink) Format(duration float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]float64{
		"count":   c.total,
		"samples": float64(c.samples),
		"largest": c.largest,
	}
	if duration > 0 {
		out["per_second"] = c.total / duration
	}
	return out
}

// IsEmpty 没有非零累加时视为空
func (c *CounterSink) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total == 0
}

// GaugeSink 保留最近一次的值，例如最新结果的伤害倍率
type GaugeSink struct {
	mu   sync.Mutex
	last float64
	m    moments
}

// Add 记录样本
func (g *GaugeSink) Add(sample Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = sample.Value
	g.m.observe(sample.Value)
}

// Format reports the latest value with the range and mean seen so far.
func (g *GaugeSink) Format(float64) map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]float64{
		"value":   g.last,
		"min":     g.m.min,
		"max":     g.m.max,
		"avg":     g.m.mean(),
		"samples": float64(g.m.n),
	}
}

// IsEmpty 检查是否为空
func (g *GaugeSink) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.n == 0
}

// RateSink 统计成功占比与最长连续成功，非零样本视为成功
type RateSink struct {
	mu         sync.Mutex
	hits       int64
	total      int64
	streak     int64
	bestStreak int64
}

// Add 记录一次判定
func (r *RateSink) Add(sample Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if sample.Value == 0 {
		r.streak = 0
		return
	}
	r.hits++
	r.streak++
	if r.streak > r.bestStreak {
		r.bestStreak = r.streak
	}
}

// Format reports hits, misses, the hit ratio and the longest run of
// consecutive hits.
func (r *RateSink) Format(float64) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ratio float64
	if r.total > 0 {
		ratio = float64(r.hits) / float64(r.total)
	}
	return map[string]float64{
		"hits":        float64(r.hits),
		"misses":      float64(r.total - r.hits),
		"total":       float64(r.total),
		"ratio":       ratio,
		"best_streak": float64(r.bestStreak),
	}
}

// IsEmpty 检查是否为空
func (r *RateSink) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total == 0
}

const (
	// trendScale 样本以千分之一精度记录到直方图
	trendScale = 1000
	// trendMax 可记录的最大值（按原始单位为一小时的毫秒数）
	trendMax = int64(time.Hour/time.Millisecond) * trendScale
)

// TrendSink 趋势聚合器，百分位数由 HdrHistogram 计算
type TrendSink struct {
	mu   sync.Mutex
	m    moments
	hist *hdrhistogram.Histogram
}

// NewTrendSink creates an empty trend sink.
func NewTrendSink() *TrendSink {
	return &TrendSink{hist: hdrhistogram.New(1, trendMax, 3)}
}

// Add 添加样本，负值按 0 记录到直方图
func (t *TrendSink) Add(sample Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.observe(sample.Value)
	v := int64(math.Round(sample.Value * trendScale))
	if v < 0 {
		v = 0
	}
	if v > trendMax {
		v = trendMax
	}
	_ = t.hist.RecordValue(v)
}

// Format 返回统计结果
func (t *TrendSink) Format(float64) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := map[string]float64{
		"count": float64(t.m.n),
		"min":   t.m.min,
		"max":   t.m.max,
	}

	if t.m.n > 0 {
		result["avg"] = t.m.mean()
		result["med"] = t.percentile(50)
		result["p(90)"] = t.percentile(90)
		result["p(95)"] = t.percentile(95)
		result["p(99)"] = t.percentile(99)
	}

	return result
}

// percentile 需要在持有锁的情况下调用
func (t *TrendSink) percentile(p float64) float64 {
	if t.m.n == 0 {
		return 0
	}
	return float64(t.hist.ValueAtQuantile(p)) / trendScale
}

// IsEmpty 检查是否为空
func (t *TrendSink) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m.n == 0
}

// Percentile 计算指定百分位数（公开方法，会加锁）
func (t *TrendSink) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentile(p)
}
