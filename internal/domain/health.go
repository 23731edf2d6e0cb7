package domain

import "time"

// HealthStatus aggregates the independent availability probes.
type HealthStatus struct {
	LLMAvailable         bool      `json:"llm_available"`
	VendorAvailable      bool      `json:"vendor_available"`
	PersistenceAvailable bool      `json:"persistence_available"`
	LLMModels            []string  `json:"llm_models,omitempty"`
	LastCheck            time.Time `json:"last_check_utc"`
}

// Healthy reports whether every probe passed.
func (h HealthStatus) Healthy() bool {
	return h.LLMAvailable && h.VendorAvailable && h.PersistenceAvailable
}
