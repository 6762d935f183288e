package cli

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"civicconnect-be/client"
	"civicconnect-be/mirror"

	"github.com/spf13/cobra"
)

var errNoMirror = errors.New("no mirror configured; pass --mirror or set CIVIC_MIRROR")

type opView struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	TargetID  string          `json:"targetId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type rejectionView struct {
	opView
	Status     int       `json:"status"`
	Message    string    `json:"message"`
	RejectedAt time.Time `json:"rejectedAt"`
}

func viewOp(op mirror.Op) opView {
	return opView{Seq: op.Seq, Kind: string(op.Kind), TargetID: op.TargetID, Payload: op.Payload, CreatedAt: op.CreatedAt}
}

func newSyncCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if s.mirror == nil {
					return errNoMirror
				}
				report, err := s.Sync(ctx)
				extra := map[string]any{}
				switch {
				case err == nil:
				case errors.Is(err, client.ErrSessionExpired):
					extra["_hints"] = []string{"session expired; run `civicctl login` and sync again"}
				case client.IsRetryable(err):
					extra["_hints"] = []string{"server not taking writes yet; " + err.Error()}
				default:
					return err
				}
				if report.Rejected > 0 {
					extra["_hints"] = append(hintList(extra), "see `civicctl sync rejected`")
				}
				return writeData(cmd, app, report, extra)
			})
		},
	}
	cmd.AddCommand(newSyncPendingCmd(app))
	cmd.AddCommand(newSyncRejectedCmd(app))
	return cmd
}

func hintList(extra map[string]any) []string {
	hints, _ := extra["_hints"].([]string)
	return hints
}

func newSyncPendingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if s.mirror == nil {
					return errNoMirror
				}
				ops, err := s.mirror.Pending(ctx)
				if err != nil {
					return err
				}
				out := make([]opView, 0, len(ops))
				for _, op := range ops {
					out = append(out, viewOp(op))
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
}

func newSyncRejectedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rejected",
		Short: "List queued writes the server refused",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if s.mirror == nil {
					return errNoMirror
				}
				rejected, err := s.mirror.Rejections(ctx)
				if err != nil {
					return err
				}
				out := make([]rejectionView, 0, len(rejected))
				for _, r := range rejected {
					out = append(out, rejectionView{opView: viewOp(r.Op), Status: r.Status, Message: r.Message, RejectedAt: r.RejectedAt})
				}
				return writeData(cmd, app, out, nil)
			})
		},
	}
}
