package routing

import (
	"sync"
	"time"
)

type Statistics struct {
	TotalEvents           int64         `json:"total_events"`
	ProcessedEvents       int64         `json:"processed_events"`
	FailedEvents          int64         `json:"failed_events"`
	FilteredEvents        int64         `json:"filtered_events"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	QueueSize             int           `json:"queue_size"`
	QueueCapacity         int           `json:"queue_capacity"`
	ActiveRoutes          int           `json:"active_routes"`
	TotalRoutes           int           `json:"total_routes"`
	WorkersAlive          int           `json:"workers_alive"`
}

// counters are guarded by their own mutex, separate from the route table.
type counters struct {
	mu         sync.Mutex
	total      int64
	processed  int64
	failed     int64
	filtered   int64
	avgSeconds float64
}

func (c *counters) incTotal() {
	c.mu.Lock()
	c.total++
	c.mu.Unlock()
}

func (c *counters) incFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

func (c *counters) incFiltered() {
	c.mu.Lock()
	c.filtered++
	c.mu.Unlock()
}

// recordSuccess folds d into the running mean without keeping history.
func (c *counters) recordSuccess(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processed++
	c.avgSeconds += (d.Seconds() - c.avgSeconds) / float64(c.processed)
}

func (c *counters) snapshot() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Statistics{
		TotalEvents:           c.total,
		ProcessedEvents:       c.processed,
		FailedEvents:          c.failed,
		FilteredEvents:        c.filtered,
		AverageProcessingTime: time.Duration(c.avgSeconds * float64(time.Second)),
	}
}
