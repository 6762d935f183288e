package cli

import (
	"context"
	"errors"

	"civicconnect-be/client"

	"github.com/spf13/cobra"
)

func newComplaintsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "complaints",
		Aliases: []string{"complaint", "c"},
		Short:   "File, browse and edit complaints",
	}
	cmd.AddCommand(newComplaintsListCmd(app))
	cmd.AddCommand(newComplaintsShowCmd(app))
	cmd.AddCommand(newComplaintsCreateCmd(app))
	cmd.AddCommand(newComplaintsUpdateCmd(app))
	cmd.AddCommand(newComplaintsUpvoteCmd(app))
	cmd.AddCommand(newComplaintsDeleteCmd(app))
	return cmd
}

func newComplaintsListCmd(app *App) *cobra.Command {
	var status, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the complaints visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, err := s.ListComplaints(ctx, status, category)
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	return cmd
}

func newComplaintsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one complaint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, err := s.GetComplaint(ctx, args[0])
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
}

func newComplaintsCreateCmd(app *App) *cobra.Command {
	var in client.NewComplaint
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a complaint",
		RunE: func(cmd *cobra.Command, args []string) error {
			latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
			if latSet != lngSet {
				return writeErr(cmd, errors.New("--lat and --lng go together"))
			}
			if latSet {
				in.Coords = []float64{lat, lng}
			}
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, queued, err := s.CreateComplaint(ctx, in)
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, queuedHints(queued))
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Short title")
	cmd.Flags().StringVar(&in.Description, "description", "", "What is wrong")
	cmd.Flags().StringVar(&in.LocationText, "location", "", "Where it is, in words")
	cmd.Flags().StringVar(&in.Town, "town", "", "Town")
	cmd.Flags().StringVar(&in.Category, "category", "", "Category (default General)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	return cmd
}

// updateFlags maps flag names to the JSON fields they patch.
var updateFlags = map[string]string{
	"title":       "title",
	"description": "description",
	"location":    "locationText",
	"category":    "category",
	"status":      "status",
	"remarks":     "remarks",
	"proof":       "proofName",
	"assign":      "assignedTo",
	"priority":    "priority",
	"due":         "dueDate",
}

func newComplaintsUpdateCmd(app *App) *cobra.Command {
	var unassign bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch fields of a complaint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{}
			for flag, field := range updateFlags {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					fields[field] = v
				}
			}
			if cmd.Flags().Changed("hours") {
				v, _ := cmd.Flags().GetFloat64("hours")
				fields["estimatedHours"] = v
			}
			if unassign {
				fields["assignedTo"] = nil
			}
			if len(fields) == 0 {
				return writeErr(cmd, errors.New("nothing to update"))
			}
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				out, queued, err := s.UpdateComplaint(ctx, args[0], fields)
				if err != nil {
					return err
				}
				return writeData(cmd, app, out, queuedHints(queued))
			})
		},
	}
	for flag, field := range updateFlags {
		cmd.Flags().String(flag, "", "New "+field)
	}
	cmd.Flags().Float64("hours", 0, "New estimatedHours")
	cmd.Flags().BoolVar(&unassign, "unassign", false, "Clear the assignee")
	cmd.MarkFlagsMutuallyExclusive("assign", "unassign")
	return cmd
}

func newComplaintsUpvoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "upvote <id>",
		Short: "Upvote a complaint once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				n, err := s.Upvote(ctx, args[0])
				if err != nil {
					return err
				}
				return writeData(cmd, app, map[string]int{"upvotes": n}, nil)
			})
		},
	}
}

func newComplaintsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a complaint (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if err := s.DeleteComplaint(ctx, args[0]); err != nil {
					return err
				}
				return writeData(cmd, app, map[string]string{"id": args[0], "message": "Deleted"}, nil)
			})
		},
	}
}

func queuedHints(queued bool) map[string]any {
	if !queued {
		return nil
	}
	return map[string]any{
		"queued": true,
		"_hints": []string{"server unreachable; run `civicctl sync` once it is back"},
	}
}
