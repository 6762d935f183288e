package cli

import (
	"context"
	"errors"

	"civicconnect-be/client"

	"github.com/spf13/cobra"
)

func newRegisterCmd(app *App) *cobra.Command {
	var in client.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				auth, err := s.Register(ctx, in)
				if err != nil {
					return err
				}
				return writeData(cmd, app, auth.User, nil)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password")
	cmd.Flags().StringVar(&in.Role, "role", "citizen", "citizen|employee|admin")
	cmd.Flags().StringVar(&in.AdminKey, "admin-key", envOr("CIVIC_ADMIN_KEY", ""), "Signup key for admin accounts")
	cmd.Flags().StringVar(&in.Town, "town", "", "Town (required for admins)")
	cmd.Flags().StringVar(&in.EmpID, "emp-id", "", "Employee code")
	cmd.Flags().StringVar(&in.Department, "department", "", "Employee department")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session in the mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				auth, err := s.Login(ctx, email, password)
				if err != nil {
					return err
				}
				var hints []string
				if s.mirror == nil {
					hints = append(hints, "no --mirror set; the session will not be remembered")
				}
				return writeData(cmd, app, auth.User, map[string]any{"token": auth.Token, "_hints": hints})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

var errNoSession = errors.New("not signed in; run `civicctl login` first")

func newMeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if !s.HasSession() {
					return errNoSession
				}
				me, err := s.Me(ctx)
				if err != nil {
					return err
				}
				return writeData(cmd, app, me, nil)
			})
		},
	}
}
