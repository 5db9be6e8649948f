package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cameraAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "available",
		Help:      "1 when the last poll reported the camera online",
	}, []string{"entity_id"})

	cameraPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "polls_total",
		Help:      "Entity status polls by result",
	}, []string{"entity_id", "result"})

	serviceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "calls_total",
		Help:      "Routed service calls by result",
	}, []string{"domain", "service", "result"})

	pollCache   = make(map[string]*PollStats)
	pollCacheMu sync.RWMutex
)

// PollStats is the cached poll history of one entity.
type PollStats struct {
	Available bool      `json:"available"`
	Polls     int       `json:"polls"`
	Failures  int       `json:"failures"`
	LastPoll  time.Time `json:"last_poll"`
	LastError string    `json:"last_error,omitempty"`
}

// RecordPoll records the outcome of one entity poll.
func RecordPoll(entityID string, available bool, err error) {
	cameraPolls.WithLabelValues(entityID, resultLabel(err)).Inc()

	pollCacheMu.Lock()
	defer pollCacheMu.Unlock()

	s, ok := pollCache[entityID]
	if !ok {
		s = &PollStats{}
		pollCache[entityID] = s
	}
	s.Polls++
	s.LastPoll = time.Now()
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
		return
	}
	s.LastError = ""
	s.Available = available
	if available {
		cameraAvailable.WithLabelValues(entityID).Set(1)
	} else {
		cameraAvailable.WithLabelValues(entityID).Set(0)
	}
}

// GetPollStats returns a copy of the cached stats, or nil if never polled.
func GetPollStats(entityID string) *PollStats {
	pollCacheMu.RLock()
	defer pollCacheMu.RUnlock()

	if s, ok := pollCache[entityID]; ok {
		cp := *s
		return &cp
	}
	return nil
}

// DeleteCamera drops all series and cached stats for an entity.
func DeleteCamera(entityID string) {
	cameraAvailable.DeleteLabelValues(entityID)
	cameraPolls.DeletePartialMatch(prometheus.Labels{"entity_id": entityID})

	pollCacheMu.Lock()
	delete(pollCache, entityID)
	pollCacheMu.Unlock()
}

// RecordServiceCall counts one routed service call.
func RecordServiceCall(domain, service string, err error) {
	serviceCalls.WithLabelValues(domain, service, resultLabel(err)).Inc()
}
