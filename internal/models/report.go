package models

import "time"

// TideReport summarises the activity recorded in one tide
type TideReport struct {
	TideID                string            `json:"tide_id"`
	Name                  string            `json:"name"`
	FlowType              FlowType          `json:"flow_type"`
	Status                TideStatus        `json:"status"`
	SessionCount          int               `json:"session_count"`
	TotalFlowMinutes      int               `json:"total_flow_minutes"`
	AverageSessionMinutes float64           `json:"average_session_minutes"`
	MinutesByIntensity    map[Intensity]int `json:"minutes_by_intensity"`
	EnergyUpdateCount     int               `json:"energy_update_count"`
	LatestEnergyLevel     string            `json:"latest_energy_level,omitempty"`
	TaskLinkCount         int               `json:"task_link_count"`
	FirstFlowAt           *time.Time        `json:"first_flow_at,omitempty"`
	LastFlowAt            *time.Time        `json:"last_flow_at,omitempty"`
	GeneratedAt           time.Time         `json:"generated_at"`
}

// BuildReport computes the report for a tide document
func BuildReport(t *Tide, now time.Time) *TideReport {
	report := &TideReport{
		TideID:             t.ID,
		Name:               t.Name,
		FlowType:           t.FlowType,
		Status:             t.Status,
		SessionCount:       len(t.FlowSessions),
		MinutesByIntensity: map[Intensity]int{},
		EnergyUpdateCount:  len(t.EnergyUpdates),
		TaskLinkCount:      len(t.TaskLinks),
		GeneratedAt:        now,
	}

	for i := range t.FlowSessions {
		s := t.FlowSessions[i]
		report.TotalFlowMinutes += s.Duration
		report.MinutesByIntensity[s.Intensity] += s.Duration
		if report.FirstFlowAt == nil || s.StartedAt.Before(*report.FirstFlowAt) {
			started := s.StartedAt
			report.FirstFlowAt = &started
		}
	}
	report.LastFlowAt = t.LastFlowAt()

	if report.SessionCount > 0 {
		report.AverageSessionMinutes = float64(report.TotalFlowMinutes) / float64(report.SessionCount)
	}

	// Latest by timestamp, later position wins ties
	var latest *EnergyUpdate
	for i := range t.EnergyUpdates {
		u := &t.EnergyUpdates[i]
		if latest == nil || !u.Timestamp.Before(latest.Timestamp) {
			latest = u
		}
	}
	if latest != nil {
		report.LatestEnergyLevel = latest.EnergyLevel
	}

	return report
}
