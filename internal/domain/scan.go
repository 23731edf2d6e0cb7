package domain

import (
	"fmt"
	"time"
)

// ScanStatus is the lifecycle state of a scan run. Pending and
// cancelled are run-manager states; only running, completed, and
// failed rows ever reach the store.
type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// ScanRun records one execution of the scan pipeline.
type ScanRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      ScanStatus `json:"status"`
	Preset      string     `json:"preset"`
	Sectors     []string   `json:"sectors,omitempty"`
	TickerCount int        `json:"ticker_count"`
	TopN        int        `json:"top_n"`
}

// NewScanRun returns a running scan record stamped with the start time.
func NewScanRun(id, preset string, sectors []string, topN int) (ScanRun, error) {
	if id == "" {
		return ScanRun{}, fmt.Errorf("scan run: id is empty")
	}
	return ScanRun{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    ScanRunning,
		Preset:    preset,
		Sectors:   sectors,
		TopN:      topN,
	}, nil
}

// Completed returns a copy marked completed at now with the final count.
func (s ScanRun) Completed(tickerCount int, now time.Time) ScanRun {
	done := now.UTC()
	s.CompletedAt = &done
	s.Status = ScanCompleted
	s.TickerCount = tickerCount
	return s
}

// Failed returns a copy marked failed at now.
func (s ScanRun) Failed(now time.Time) ScanRun {
	done := now.UTC()
	s.CompletedAt = &done
	s.Status = ScanFailed
	return s
}
