// Package dispatcher - Statistics collection
package dispatcher

import (
	"ssw-access-monitor/pkg/types"
)

// updateStats updates statistics in a thread-safe manner
func (d *Dispatcher) updateStats(fn func(*types.DispatcherStats)) {
	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()
	fn(&d.stats)
}

// GetStats returns a safe copy of current statistics
func (d *Dispatcher) GetStats() types.DispatcherStats {
	d.statsMutex.RLock()
	defer d.statsMutex.RUnlock()

	statsCopy := d.stats

	// Deep copy the maps
	statsCopy.SinkDistribution = make(map[string]int64, len(d.stats.SinkDistribution))
	for k, v := range d.stats.SinkDistribution {
		statsCopy.SinkDistribution[k] = v
	}
	statsCopy.EventsDropped = make(map[string]int64, len(d.stats.EventsDropped))
	for k, v := range d.stats.EventsDropped {
		statsCopy.EventsDropped[k] = v
	}

	return statsCopy
}
