// Package analyzer evaluates a device's repair history and flags devices that
// are worth replacing or liquidating. Analysis has no side effects.
package analyzer

import (
	"fmt"
	"sort"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/config"
)

type Severity string

const (
	SevInfo     Severity = "info"
	SevWarning  Severity = "warning"
	SevCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SevCritical:
		return 3
	case SevWarning:
		return 2
	case SevInfo:
		return 1
	}
	return 0
}

const (
	CodeFrequentRepairs  = "FREQUENT_REPAIRS"
	CodeHighRepairCost   = "HIGH_REPAIR_COST"
	CodeRecentRepair     = "RECENT_REPAIR"
	CodeRepairInProgress = "REPAIR_IN_PROGRESS"
)

const SuggestionNone = "No action needed"

type Warning struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type Report struct {
	DeviceID       string     `json:"device_id"`
	RepairCount    int        `json:"repair_count"`
	RecentCount    int        `json:"recent_count"`
	TotalCost      float64    `json:"total_cost"`
	CostRatio      float64    `json:"cost_ratio"`
	LastRepairDate *time.Time `json:"last_repair_date,omitempty"`
	Warnings       []Warning  `json:"warnings"`
	Suggestion     string     `json:"suggestion"`
}

type Thresholds struct {
	// Window bounds the frequency count.
	Window time.Duration
	// FrequencyLimit repairs inside Window warn; one more is critical.
	FrequencyLimit    int
	CostWarnRatio     float64
	CostCriticalRatio float64
	// RecentRepairCutoff flags a repair younger than this.
	RecentRepairCutoff time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:             90 * 24 * time.Hour,
		FrequencyLimit:     3,
		CostWarnRatio:      0.3,
		CostCriticalRatio:  0.5,
		RecentRepairCutoff: 14 * 24 * time.Hour,
	}
}

// ThresholdsFrom fills unset config values with the defaults.
func ThresholdsFrom(cfg config.AnalyzerConfig) Thresholds {
	t := DefaultThresholds()
	if cfg.Window > 0 {
		t.Window = cfg.Window
	}
	if cfg.FrequencyLimit > 0 {
		t.FrequencyLimit = cfg.FrequencyLimit
	}
	if cfg.CostWarnRatio > 0 {
		t.CostWarnRatio = cfg.CostWarnRatio
	}
	if cfg.CostCriticalRatio > 0 {
		t.CostCriticalRatio = cfg.CostCriticalRatio
	}
	if cfg.RecentRepairCutoff > 0 {
		t.RecentRepairCutoff = cfg.RecentRepairCutoff
	}
	return t
}

// Analyze evaluates repairs of device as of now. Declined repairs (rejected or
// not needed) are ignored; only completed repairs contribute cost.
func Analyze(device *asset.Device, repairs []asset.Repair, now time.Time, th Thresholds) Report {
	rep := Report{
		DeviceID: device.ID.String(),
		Warnings: make([]Warning, 0),
	}

	windowStart := now.Add(-th.Window)
	inProgress := false
	for i := range repairs {
		r := &repairs[i]
		if r.DeviceID != device.ID {
			continue
		}
		if r.Status == asset.RepairTuChoi || r.Status == asset.RepairKhongCanSua {
			continue
		}

		rep.RepairCount++
		if !r.CreatedAt.Before(windowStart) && !r.CreatedAt.After(now) {
			rep.RecentCount++
		}
		if r.Status == asset.RepairDaHoanTat {
			rep.TotalCost += r.Cost
		}
		if r.Status.Active() {
			inProgress = true
		}

		at := repairDate(r)
		if rep.LastRepairDate == nil || at.After(*rep.LastRepairDate) {
			rep.LastRepairDate = &at
		}
	}

	if th.FrequencyLimit > 0 && rep.RecentCount >= th.FrequencyLimit {
		sev := SevWarning
		if rep.RecentCount > th.FrequencyLimit {
			sev = SevCritical
		}
		rep.Warnings = append(rep.Warnings, Warning{
			Code:     CodeFrequentRepairs,
			Severity: sev,
			Message:  fmt.Sprintf("%d repairs in the last %d days", rep.RecentCount, days(th.Window)),
		})
	}

	if device.PurchasePrice > 0 {
		rep.CostRatio = rep.TotalCost / device.PurchasePrice
		var sev Severity
		switch {
		case rep.CostRatio > th.CostCriticalRatio:
			sev = SevCritical
		case rep.CostRatio >= th.CostWarnRatio:
			sev = SevWarning
		}
		if sev != "" {
			rep.Warnings = append(rep.Warnings, Warning{
				Code:     CodeHighRepairCost,
				Severity: sev,
				Message: fmt.Sprintf("repair cost %.0f is %.0f%% of purchase price %.0f",
					rep.TotalCost, rep.CostRatio*100, device.PurchasePrice),
			})
		}
	}

	if rep.LastRepairDate != nil && now.Sub(*rep.LastRepairDate) < th.RecentRepairCutoff {
		rep.Warnings = append(rep.Warnings, Warning{
			Code:     CodeRecentRepair,
			Severity: SevInfo,
			Message:  fmt.Sprintf("last repair %d days ago", days(now.Sub(*rep.LastRepairDate))),
		})
	}

	if inProgress {
		rep.Warnings = append(rep.Warnings, Warning{
			Code:     CodeRepairInProgress,
			Severity: SevInfo,
			Message:  "a repair is in progress",
		})
	}

	sort.SliceStable(rep.Warnings, func(i, j int) bool {
		return rep.Warnings[i].Severity.rank() > rep.Warnings[j].Severity.rank()
	})
	rep.Suggestion = suggest(rep.Warnings)
	return rep
}

// suggest derives the recommendation from the worst warning.
func suggest(warnings []Warning) string {
	if len(warnings) == 0 {
		return SuggestionNone
	}
	worst := warnings[0]
	switch {
	case worst.Severity == SevCritical && worst.Code == CodeHighRepairCost:
		return "Consider liquidating the device: repairs cost more than half of its value"
	case worst.Severity == SevCritical:
		return "Consider replacing the device: it needs repair too often"
	case worst.Severity == SevWarning:
		return "Monitor the device closely and plan a replacement"
	}
	return SuggestionNone
}

// repairDate is when the repair last made progress.
func repairDate(r *asset.Repair) time.Time {
	switch {
	case r.ConfirmedAt != nil:
		return *r.ConfirmedAt
	case r.CompletedAt != nil:
		return *r.CompletedAt
	}
	return r.CreatedAt
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
