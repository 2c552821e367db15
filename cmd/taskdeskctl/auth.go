package main

import (
	"errors"
	"fmt"

	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/session"
	"github.com/spf13/cobra"
)

func newLoginCommand(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password (or TASKDESK_PASSWORD) are required")
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			s, err := a.auth.Login(ctx, email, password)
			if err != nil {
				return err
			}
			a.coordinator.SignIn(s.Tokens.AccessToken)
			a.state.SetRefresh(a.auth.RefreshToken())
			if err := a.state.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", s.Account.Email, s.Account.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", envOr("TASKDESK_EMAIL", ""), "account email")
	cmd.Flags().StringVar(&password, "password", envOr("TASKDESK_PASSWORD", ""), "account password")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			err = a.auth.Logout(ctx, svc)
			if rmErr := a.state.remove(); rmErr != nil {
				return rmErr
			}
			if err != nil && !errors.Is(err, session.ErrSessionExpired) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newMeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			account, err := svc.Profile(ctx, authsvc.Auth{})
			if err != nil {
				return err
			}
			return a.printAccount(cmd.OutOrStdout(), account)
		},
	}
}

func newPasswdCommand(a *app) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			if _, err := svc.ChangePassword(ctx, authsvc.Auth{}, current, next); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password changed, other sessions can no longer renew")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password, at least 6 characters")
	cmd.MarkFlagRequired("current")
	cmd.MarkFlagRequired("new")
	return cmd
}
