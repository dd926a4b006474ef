package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tides/internal/models"
	"tides/pkg/auth"
)

var (
	idColor     = color.New(color.FgCyan)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
	headerColor = color.New(color.Bold)
)

func statusLabel(status models.TideStatus) string {
	switch status {
	case models.TideStatusActive:
		return okColor.Sprint(string(status))
	case models.TideStatusPaused:
		return warnColor.Sprint(string(status))
	default:
		return dimColor.Sprint(string(status))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func (a *app) createCmd() *cobra.Command {
	var flowType, description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tide, err := a.client.CreateTide(cmd.Context(), models.CreateTideRequest{
				Name:        args[0],
				FlowType:    models.FlowType(flowType),
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created tide %s (%s)\n", okColor.Sprint("✓"), idColor.Sprint(tide.ID), tide.FlowType)
			return nil
		},
	}
	cmd.Flags().StringVar(&flowType, "flow", string(models.FlowTypeDaily), "flow type: daily, weekly, monthly, project, seasonal")
	cmd.Flags().StringVar(&description, "description", "", "optional description")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var flowType string
	var activeOnly, asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tides from the owner's index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.client.ListTides(cmd.Context(), models.ListFilter{
				FlowType:   models.FlowType(flowType),
				ActiveOnly: activeOnly,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No tides found")
				return nil
			}

			fmt.Fprintln(out, headerColor.Sprintf("%-38s %-24s %-9s %-10s %s", "ID", "NAME", "FLOW", "STATUS", "SESSIONS"))
			for _, e := range entries {
				fmt.Fprintf(out, "%-38s %-24s %-9s %-10s %d\n",
					idColor.Sprint(e.ID), truncate(e.Name, 24), e.FlowType, statusLabel(e.Status), e.FlowCount)
			}
			fmt.Fprintf(out, "\nTotal: %d\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&flowType, "flow", "", "only tides with this flow type")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active tides")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <tide-id>",
		Short: "Show a tide with its sessions, energy updates and task links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tide, err := a.client.GetTide(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, tide)
			}

			fmt.Fprintf(out, "%s %s\n", headerColor.Sprint(tide.Name), idColor.Sprintf("(%s)", tide.ID))
			fmt.Fprintf(out, "  Flow: %s  Status: %s  Created: %s\n", tide.FlowType, statusLabel(tide.Status), formatTime(tide.CreatedAt))
			if tide.Description != "" {
				fmt.Fprintf(out, "  %s\n", tide.Description)
			}

			fmt.Fprintf(out, "\nFlow sessions (%d)\n", len(tide.FlowSessions))
			for _, s := range tide.FlowSessions {
				fmt.Fprintf(out, "  %s  %-8s %3d min  %s\n", formatTime(s.StartedAt), s.Intensity, s.Duration, s.WorkContext)
			}
			fmt.Fprintf(out, "\nEnergy updates (%d)\n", len(tide.EnergyUpdates))
			for _, u := range tide.EnergyUpdates {
				fmt.Fprintf(out, "  %s  %-10s %s\n", formatTime(u.Timestamp), u.EnergyLevel, u.Context)
			}
			fmt.Fprintf(out, "\nTask links (%d)\n", len(tide.TaskLinks))
			for _, l := range tide.TaskLinks {
				fmt.Fprintf(out, "  %s  %s  %s\n", idColor.Sprint(l.ID), l.TaskTitle, dimColor.Sprint(l.TaskURL))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var name, description, status string

	cmd := &cobra.Command{
		Use:   "update <tide-id>",
		Short: "Update a tide's name, description or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req models.UpdateTideRequest
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("status") {
				s := models.TideStatus(status)
				req.Status = &s
			}
			if req.Name == nil && req.Description == nil && req.Status == nil {
				return fmt.Errorf("nothing to update: pass --name, --description or --status")
			}

			tide, err := a.client.UpdateTide(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated %s: %s [%s]\n", okColor.Sprint("✓"), idColor.Sprint(tide.ID), tide.Name, statusLabel(tide.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "active, completed or paused")
	return cmd
}

func (a *app) flowCmd() *cobra.Command {
	var intensity, workContext, energy string
	var duration int

	cmd := &cobra.Command{
		Use:   "flow <tide-id>",
		Short: "Record a flow session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.client.AddFlowSession(cmd.Context(), args[0], models.FlowSession{
				Intensity:   models.Intensity(intensity),
				Duration:    duration,
				WorkContext: workContext,
				EnergyLevel: energy,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Recorded %d min %s session %s\n", okColor.Sprint("✓"), session.Duration, session.Intensity, idColor.Sprint(session.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&intensity, "intensity", string(models.IntensityModerate), "gentle, moderate or strong")
	cmd.Flags().IntVar(&duration, "duration", 25, "length in minutes")
	cmd.Flags().StringVar(&workContext, "context", "", "what the session was about")
	cmd.Flags().StringVar(&energy, "energy", "", "energy level during the session")
	return cmd
}

func (a *app) energyCmd() *cobra.Command {
	var energyContext string

	cmd := &cobra.Command{
		Use:   "energy <tide-id> <level>",
		Short: "Record an energy check-in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := a.client.AddEnergyUpdate(cmd.Context(), args[0], models.EnergyUpdate{
				EnergyLevel: args[1],
				Context:     energyContext,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Energy %s recorded %s\n", okColor.Sprint("✓"), update.EnergyLevel, idColor.Sprint(update.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&energyContext, "context", "", "optional note")
	return cmd
}

func (a *app) linkCmd() *cobra.Command {
	var taskType string

	cmd := &cobra.Command{
		Use:   "link <tide-id> <task-url> <task-title>",
		Short: "Link an external task to a tide",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := a.client.AddTaskLink(cmd.Context(), args[0], models.TaskLink{
				TaskURL:   args[1],
				TaskTitle: args[2],
				TaskType:  taskType,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Linked %q as %s\n", okColor.Sprint("✓"), link.TaskTitle, idColor.Sprint(link.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&taskType, "type", "", "task system, e.g. github or linear")
	return cmd
}

func (a *app) linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links <tide-id>",
		Short: "List a tide's task links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			links, err := a.client.ListTaskLinks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(links) == 0 {
				fmt.Fprintln(out, "No task links")
				return nil
			}
			for _, l := range links {
				fmt.Fprintf(out, "%s  %s  %s\n", idColor.Sprint(l.ID), l.TaskTitle, dimColor.Sprint(l.TaskURL))
			}
			return nil
		},
	}
}

func (a *app) unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <tide-id> <link-id>",
		Short: "Remove a task link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.client.RemoveTaskLink(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s No task link %s on this tide\n", warnColor.Sprint("!"), args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed task link %s\n", okColor.Sprint("✓"), idColor.Sprint(args[1]))
			return nil
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <tide-id>",
		Short: "Summarise a tide's activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.client.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, report)
			}

			fmt.Fprintf(out, "%s %s\n", headerColor.Sprint(report.Name), statusLabel(report.Status))
			fmt.Fprintf(out, "  Sessions:      %d (%d min, avg %.1f)\n", report.SessionCount, report.TotalFlowMinutes, report.AverageSessionMinutes)
			for _, intensity := range []models.Intensity{models.IntensityGentle, models.IntensityModerate, models.IntensityStrong} {
				if minutes := report.MinutesByIntensity[intensity]; minutes > 0 {
					fmt.Fprintf(out, "    %-9s %d min\n", intensity, minutes)
				}
			}
			fmt.Fprintf(out, "  Energy:        %d updates", report.EnergyUpdateCount)
			if report.LatestEnergyLevel != "" {
				fmt.Fprintf(out, ", latest %s", report.LatestEnergyLevel)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Task links:    %d\n", report.TaskLinkCount)
			if report.LastFlowAt != nil {
				fmt.Fprintf(out, "  Last flow:     %s\n", formatTime(*report.LastFlowAt))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) insightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights <tide-id>",
		Short: "Ask the server for an AI summary of a tide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Insights(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			fmt.Fprintln(cmd.OutOrStdout(), dimColor.Sprintf("confidence %.2f", result.Confidence))
			return nil
		},
	}
}

func (a *app) rebuildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Recompute the owner's tide index from the tide documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := a.client.RebuildIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Index rebuilt with %d entries\n", okColor.Sprint("✓"), count)
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live tide events",
		Long:  "Stream live tide events for the owner until interrupted, or until --count events have arrived.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			seen := 0
			return a.client.Watch(cmd.Context(), func(event models.LiveEvent) bool {
				fmt.Fprintln(out, formatEvent(event))
				seen++
				return count <= 0 || seen < count
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}

func formatEvent(event models.LiveEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s %s", dimColor.Sprint(ts.Local().Format("15:04:05")), eventColor(event.Type).Sprint(event.Type))
	if event.TideID != "" {
		line += " tide=" + idColor.Sprint(event.TideID)
	}
	return line
}

func eventColor(eventType string) *color.Color {
	switch {
	case eventType == "error":
		return color.New(color.FgRed)
	case strings.HasSuffix(eventType, "_removed"):
		return warnColor
	case strings.HasSuffix(eventType, "_created") || strings.HasSuffix(eventType, "_added"):
		return okColor
	default:
		return color.New(color.FgBlue)
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var secret string
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user with the server's JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = a.settings.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("no JWT secret: pass --secret or set TIDES_JWT_SECRET")
			}

			tokenAuth, err := auth.NewTokenAuth(secret, expiry)
			if err != nil {
				return err
			}
			token, err := tokenAuth.GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default $TIDES_JWT_SECRET)")
	cmd.Flags().DurationVar(&expiry, "expiry", auth.DefaultTokenExpiry, "token lifetime")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
