package cli

import (
	"context"
	"fmt"
	"strings"

	"civicconnect-be/client"

	"github.com/spf13/cobra"
)

func staleHints(stale bool) map[string]any {
	if !stale {
		return nil
	}
	return map[string]any{
		"stale":  true,
		"_hints": []string{"server unreachable; showing the local mirror"},
	}
}

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "Work the tasks assigned to you (employees)",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksStatusCmd(app))
	cmd.AddCommand(newTasksStatsCmd(app))
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				tasks, stale, err := s.Tasks(ctx, status)
				if err != nil {
					return err
				}
				return writeData(cmd, app, tasks, staleHints(stale))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one of your tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				task, stale, err := s.Task(ctx, args[0])
				if err != nil {
					return err
				}
				return writeData(cmd, app, task, staleHints(stale))
			})
		},
	}
}

func newTasksStatusCmd(app *App) *cobra.Command {
	var in client.TaskStatusUpdate
	var hours, lat, lng float64
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Move a task to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hours") {
				in.ActualHours = &hours
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				in.Location = &client.Location{Lat: lat, Lng: lng}
			}
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				task, err := s.UpdateTaskStatus(ctx, args[0], in)
				if err != nil {
					return err
				}
				return writeData(cmd, app, task, nil)
			})
		},
	}
	cmd.Flags().StringVar(&in.Status, "status", "", "New status")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Work notes (stored as remarks)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "Actual hours spent")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Current latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Current longitude")
	cmd.MarkFlagsRequiredTogether("lat", "lng")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newTasksStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count your tasks by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				stats, err := s.TaskStats(ctx)
				if err != nil {
					return err
				}
				return writeData(cmd, app, stats, nil)
			})
		},
	}
}

func newDutyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "duty <on|off>",
		Short:     "Go on or off duty",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			want := strings.EqualFold(args[0], "on")
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				got, err := s.SetDuty(ctx, want)
				if err != nil {
					return err
				}
				return writeData(cmd, app, map[string]bool{"isOnDuty": got}, nil)
			})
		},
	}
}

func newLocationCmd(app *App) *cobra.Command {
	var loc client.Location
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Report your current position",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
				return writeErr(cmd, fmt.Errorf("position %v,%v out of range", loc.Lat, loc.Lng))
			}
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				queued, err := s.UpdateLocation(ctx, loc)
				if err != nil {
					return err
				}
				return writeData(cmd, app, loc, queuedHints(queued))
			})
		},
	}
	cmd.Flags().Float64Var(&loc.Lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&loc.Lng, "lng", 0, "Longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newAnalyticsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Complaint analytics (admins)",
	}

	var groupBy, from, to string
	trends := &cobra.Command{
		Use:   "trends",
		Short: "Complaint counts per day or month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, err := s.Trends(ctx, groupBy, from, to)
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
	trends.Flags().StringVar(&groupBy, "group-by", "day", "day|month")
	trends.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	trends.Flags().StringVar(&to, "to", "", "End date, inclusive (YYYY-MM-DD)")

	var limit int
	areas := &cobra.Command{
		Use:   "top-areas",
		Short: "Towns ranked by complaint count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, err := s.TopAreas(ctx, limit)
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
	areas.Flags().IntVar(&limit, "limit", 0, "Maximum rows (server default when 0)")

	cmd.AddCommand(trends, areas)
	return cmd
}
