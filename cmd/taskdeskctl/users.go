package main

import (
	"fmt"
	"strings"

	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userservice"
	"github.com/spf13/cobra"
)

func newUsersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "List and manage accounts",
	}
	cmd.AddCommand(
		newUsersListCommand(a),
		newUsersShowCommand(a),
		newUsersCreateCommand(a),
		newUsersUpdateCommand(a),
		newUsersToggleCommand(a),
		newUsersDeleteCommand(a),
	)
	return cmd
}

func userRun(a *app, run func(cmd *cobra.Command, svc userservice.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := a.userService()
		if err != nil {
			return err
		}
		ctx, cancel := a.context(cmd)
		defer cancel()
		cmd.SetContext(ctx)
		return run(cmd, svc, args)
	}
}

func newUsersListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their task counts",
		Args:  cobra.NoArgs,
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, _ []string) error {
			accounts, err := svc.Accounts(cmd.Context(), authsvc.Auth{})
			if err != nil {
				return err
			}
			return a.printAccounts(cmd.OutOrStdout(), accounts)
		}),
	}
}

func newUsersShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ACCOUNT_ID",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			account, err := svc.Account(cmd.Context(), authsvc.Auth{}, id)
			if err != nil {
				return err
			}
			return a.printAccount(cmd.OutOrStdout(), account)
		}),
	}
}

func newUsersCreateCommand(a *app) *cobra.Command {
	var (
		in   usersvc.AccountInput
		role string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (admin only)",
		Args:  cobra.NoArgs,
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, _ []string) error {
			in.Role = policy.Role(strings.ToUpper(role))
			account, err := svc.CreateAccount(cmd.Context(), authsvc.Auth{}, in)
			if err != nil {
				return err
			}
			return a.printAccount(cmd.OutOrStdout(), account)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Name, "name", "", "display name")
	flags.StringVar(&in.Email, "email", "", "email, unique")
	flags.StringVar(&in.Password, "password", "", "initial password, at least 6 characters")
	flags.StringVar(&role, "role", string(policy.RoleEmployee), "ADMIN or EMPLOYEE")
	flags.StringVar(&in.Department, "department", "", "department")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersUpdateCommand(a *app) *cobra.Command {
	var name, email, password, role, department string
	cmd := &cobra.Command{
		Use:   "update ACCOUNT_ID",
		Short: "Change fields of an account (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var p usersvc.AccountPatch
			changed := cmd.Flags().Changed
			if changed("name") {
				p.Name = &name
			}
			if changed("email") {
				p.Email = &email
			}
			if changed("password") {
				p.Password = &password
			}
			if changed("role") {
				r := policy.Role(strings.ToUpper(role))
				p.Role = &r
			}
			if changed("department") {
				p.Department = &department
			}

			account, err := svc.UpdateAccount(cmd.Context(), authsvc.Auth{}, id, p)
			if err != nil {
				return err
			}
			return a.printAccount(cmd.OutOrStdout(), account)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "display name")
	flags.StringVar(&email, "email", "", "email")
	flags.StringVar(&password, "password", "", "new password")
	flags.StringVar(&role, "role", "", "ADMIN or EMPLOYEE")
	flags.StringVar(&department, "department", "", "department")
	return cmd
}

func newUsersToggleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ACCOUNT_ID",
		Short: "Activate or deactivate an account (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			account, err := svc.ToggleActive(cmd.Context(), authsvc.Auth{}, id)
			if err != nil {
				return err
			}
			return a.printAccount(cmd.OutOrStdout(), account)
		}),
	}
}

func newUsersDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ACCOUNT_ID",
		Short: "Delete an account that owns no tasks (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: userRun(a, func(cmd *cobra.Command, svc userservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := svc.DeleteAccount(cmd.Context(), authsvc.Auth{}, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d deleted\n", id)
			return nil
		}),
	}
}

func newDashboardCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Task statistics (admin only)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Totals per status, urgent and overdue tasks",
			Args:  cobra.NoArgs,
			RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, _ []string) error {
				stats, err := svc.Stats(cmd.Context(), authsvc.Auth{})
				if err != nil {
					return err
				}
				return a.printStats(cmd.OutOrStdout(), stats)
			}),
		},
		&cobra.Command{
			Use:   "overview",
			Short: "Per employee totals and completion rate",
			Args:  cobra.NoArgs,
			RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, _ []string) error {
				overview, err := svc.Overview(cmd.Context(), authsvc.Auth{})
				if err != nil {
					return err
				}
				return a.printOverview(cmd.OutOrStdout(), overview)
			}),
		},
	)
	return cmd
}
