package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	authclient "github.com/ichigozero/taskdesk/authsvc/client"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskdesk/authsvc/session"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userservice"
	"github.com/ichigozero/taskdesk/usersvc/pkg/usertransport"
	"github.com/spf13/cobra"
)

var errSignedOut = errors.New("not signed in, run: taskdeskctl login")

type app struct {
	url         string
	sessionPath string
	timeout     time.Duration
	verbose     bool
	output      string

	logger      log.Logger
	state       *fileState
	auth        *authclient.Client
	coordinator *session.Coordinator
	client      *http.Client
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "taskdeskctl",
		Short:         "Manage tasks and accounts on a taskdesk server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.url, "url", envOr("TASKDESK_URL", "http://localhost:8080"), "server URL")
	flags.StringVar(&a.sessionPath, "session", envOr("TASKDESK_SESSION", defaultSessionPath()), "session file")
	flags.DurationVar(&a.timeout, "timeout", 30*time.Second, "per-command timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log renewals and other session events")
	flags.StringVarP(&a.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newMeCommand(a),
		newPasswdCommand(a),
		newTasksCommand(a),
		newUsersCommand(a),
		newDashboardCommand(a),
	)
	return root
}

func (a *app) open() error {
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		if a.verbose {
			logger = level.NewFilter(logger, level.AllowDebug())
		} else {
			logger = level.NewFilter(logger, level.AllowWarn())
		}
	}
	a.logger = logger

	state, err := loadState(a.sessionPath)
	if err != nil {
		return err
	}
	if state.URL != "" && state.URL != a.url {
		level.Debug(logger).Log("msg", "session belongs to another server, ignoring it", "session", state.URL)
		state.reset()
	}
	state.URL = a.url
	a.state = state

	a.auth, err = authclient.New(a.url, &http.Client{Timeout: a.timeout}, logger)
	if err != nil {
		return err
	}
	a.auth.SetRefreshToken(state.RefreshToken)

	a.coordinator = session.NewCoordinator(http.DefaultTransport, a.auth,
		session.WithStore(state),
		session.WithLogger(logger),
		session.OnRenew(func(string) {
			state.SetRefresh(a.auth.RefreshToken())
			if err := state.save(); err != nil {
				level.Warn(logger).Log("during", "save session", "err", err)
			}
		}),
		session.OnSignOut(func(cause error) {
			level.Warn(logger).Log("msg", "session ended", "cause", cause)
			if err := state.remove(); err != nil {
				level.Warn(logger).Log("during", "remove session", "err", err)
			}
		}),
	)
	a.client = &http.Client{Transport: a.coordinator}
	return nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

// signedIn fails early when there is nothing to present to the server.
func (a *app) signedIn() error {
	if a.state.AccessToken == "" && a.state.RefreshToken == "" {
		return errSignedOut
	}
	return nil
}

func (a *app) authService() (authservice.Service, error) {
	if err := a.signedIn(); err != nil {
		return nil, err
	}
	return authtransport.NewHTTPClient(a.url, a.client, a.logger)
}

func (a *app) taskService() (taskservice.Service, error) {
	if err := a.signedIn(); err != nil {
		return nil, err
	}
	return tasktransport.NewHTTPClient(a.url, a.client, a.logger)
}

func (a *app) userService() (userservice.Service, error) {
	if err := a.signedIn(); err != nil {
		return nil, err
	}
	return usertransport.NewHTTPClient(a.url, a.client, a.logger)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".taskdesk-session.json"
	}
	return filepath.Join(dir, "taskdesk", "session.json")
}
