package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tides/internal/models"
)

// ErrInsightsUnavailable is returned when no prompt runner is configured
var ErrInsightsUnavailable = errors.New("insights are not configured")

// PromptMessage is one chat message handed to a PromptRunner
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptResult is the analysis returned by a PromptRunner
type PromptResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// PromptRunner runs an AI analysis over chat messages
type PromptRunner interface {
	Run(ctx context.Context, messages []PromptMessage) (*PromptResult, error)
}

// InsightService asks a PromptRunner to comment on a tide's report
type InsightService struct {
	runner PromptRunner
}

// NewInsightService creates an insight service. A nil runner disables it.
func NewInsightService(runner PromptRunner) *InsightService {
	return &InsightService{runner: runner}
}

// Enabled reports whether a runner is configured
func (s *InsightService) Enabled() bool {
	return s != nil && s.runner != nil
}

// Analyze builds the prompt for report and runs it
func (s *InsightService) Analyze(ctx context.Context, report *models.TideReport) (*PromptResult, error) {
	if !s.Enabled() {
		return nil, ErrInsightsUnavailable
	}

	result, err := s.runner.Run(ctx, buildInsightMessages(report))
	if err != nil {
		return nil, fmt.Errorf("prompt runner failed: %w", err)
	}
	return result, nil
}

func buildInsightMessages(report *models.TideReport) []PromptMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Tide %q (%s, %s)\n", report.Name, report.FlowType, report.Status)
	fmt.Fprintf(&b, "Flow sessions: %d, total %d minutes, average %.1f minutes\n",
		report.SessionCount, report.TotalFlowMinutes, report.AverageSessionMinutes)
	for _, intensity := range []models.Intensity{models.IntensityGentle, models.IntensityModerate, models.IntensityStrong} {
		fmt.Fprintf(&b, "  %s: %d minutes\n", intensity, report.MinutesByIntensity[intensity])
	}
	fmt.Fprintf(&b, "Energy check-ins: %d", report.EnergyUpdateCount)
	if report.LatestEnergyLevel != "" {
		fmt.Fprintf(&b, " (latest: %s)", report.LatestEnergyLevel)
	}
	fmt.Fprintf(&b, "\nLinked tasks: %d\n", report.TaskLinkCount)

	return []PromptMessage{
		{
			Role:    "system",
			Content: "You review focus-work logs. Reply with two or three short, concrete observations about rhythm and energy, then one suggestion.",
		},
		{Role: "user", Content: b.String()},
	}
}
