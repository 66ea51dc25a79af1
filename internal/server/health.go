package server

import (
	"net/http"
	"sort"
	"sync"
)

type ServingStatus string

const (
	Serving    ServingStatus = "SERVING"
	NotServing ServingStatus = "NOT_SERVING"
)

// HealthChecker tracks the serving status of named components.
type HealthChecker struct {
	mu     sync.RWMutex
	status map[string]ServingStatus
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		status: make(map[string]ServingStatus),
	}
}

// SetServingStatus sets the serving status of a component
func (h *HealthChecker) SetServingStatus(component string, status ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[component] = status
}

// Check reports the overall status: serving only when every component is.
func (h *HealthChecker) Check() (ServingStatus, map[string]ServingStatus) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := Serving
	components := make(map[string]ServingStatus, len(h.status))
	for name, s := range h.status {
		components[name] = s
		if s != Serving {
			overall = NotServing
		}
	}
	return overall, components
}

type healthResponse struct {
	Status     ServingStatus            `json:"status"`
	Components map[string]ServingStatus `json:"components,omitempty"`
	Failing    []string                 `json:"failing,omitempty"`
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	overall, components := h.Check()

	resp := healthResponse{Status: overall, Components: components}
	for name, s := range components {
		if s != Serving {
			resp.Failing = append(resp.Failing, name)
		}
	}
	sort.Strings(resp.Failing)

	code := http.StatusOK
	if overall != Serving {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
