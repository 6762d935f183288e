// Package cli is the civicctl command tree. Every command prints a JSON
// envelope with the result under "data".
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civicconnect-be/client"
	"civicconnect-be/mirror"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type App struct {
	Server     string
	MirrorPath string
	PrettyJSON bool
	Verbose    bool

	ClientOptions []client.Option
}

// NewRootCmd builds the command tree. opts are passed to every client the
// commands open.
func NewRootCmd(opts ...client.Option) *cobra.Command {
	app := &App{ClientOptions: opts}

	cmd := &cobra.Command{
		Use:          "civicctl",
		Short:        "Command-line client for the civic complaint service",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Sign in once; the session is kept in the local mirror
  civicctl login --email ann@example.com --password secret

  # File a complaint (queued locally if the server is down)
  civicctl complaints create --title "Broken light" --description "Dark street" --location "Elm St" --town Downtown

  # Push queued writes once the server is back
  civicctl sync
`),
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("CIVIC_SERVER", "http://localhost:5000"), "API base URL")
	cmd.PersistentFlags().StringVar(&app.MirrorPath, "mirror", envOr("CIVIC_MIRROR", defaultMirrorPath()), "Path to the local mirror database (empty disables offline support)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVar(&app.Verbose, "verbose", false, "Log client activity to stderr")

	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newMeCmd(app))
	cmd.AddCommand(newComplaintsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newDutyCmd(app))
	cmd.AddCommand(newLocationCmd(app))
	cmd.AddCommand(newAnalyticsCmd(app))
	cmd.AddCommand(newSyncCmd(app))

	return cmd
}

func defaultMirrorPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".civicctl", "mirror.sqlite")
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// session bundles an opened client with the mirror backing it.
type session struct {
	*client.Client
	mirror *mirror.Mirror
}

func (s *session) Close() {
	if s.mirror != nil {
		_ = s.mirror.Close()
	}
}

func openSession(ctx context.Context, app *App) (*session, error) {
	log := zap.NewNop()
	if app.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		log = l
	}

	s := &session{}
	opts := append([]client.Option{client.WithLogger(log)}, app.ClientOptions...)
	if app.MirrorPath != "" {
		if err := os.MkdirAll(filepath.Dir(app.MirrorPath), 0o755); err != nil {
			return nil, fmt.Errorf("create mirror dir: %w", err)
		}
		m, err := mirror.Open(ctx, app.MirrorPath)
		if err != nil {
			return nil, err
		}
		s.mirror = m
		opts = append(opts, client.WithMirror(m))
	}
	s.Client = client.New(app.Server, opts...)
	if _, err := s.LoadSession(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, app *App, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()
	if err := fn(ctx, s); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeData(cmd *cobra.Command, app *App, data any, extra map[string]any) error {
	env := map[string]any{"data": data}
	for k, v := range extra {
		env[k] = v
	}
	return writeOut(cmd, app, env)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
