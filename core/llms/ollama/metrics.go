package ollama

import "time"

type Metrics struct {
	RequestsTotal       int
	RequestsFailed      int
	AverageResponseTime time.Duration
	TotalTokens         int
	Breaker             BreakerSnapshot
	Status              string
}

func (c *Client) record(elapsed time.Duration, tokens int, success bool) {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()

	c.metrics.RequestsTotal++
	if !success {
		c.metrics.RequestsFailed++
	}
	c.metrics.TotalTokens += tokens
	n := time.Duration(c.metrics.RequestsTotal)
	c.metrics.AverageResponseTime = (c.metrics.AverageResponseTime*(n-1) + elapsed) / n
}

// Metrics returns a snapshot of request statistics.
func (c *Client) Metrics() Metrics {
	c.metricsMu.Lock()
	metrics := c.metrics
	c.metricsMu.Unlock()

	metrics.Breaker = c.breaker.Snapshot()
	metrics.Status = c.state.Status().String()
	return metrics
}
