package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/gorilla/mux"
	"github.com/hashicorp/consul/api"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskdesk/tasksvc"
	taskgorm "github.com/ichigozero/taskdesk/tasksvc/db/gorm"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/taskdesk/usersvc"
	usergorm "github.com/ichigozero/taskdesk/usersvc/db/gorm"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userservice"
	"github.com/ichigozero/taskdesk/usersvc/pkg/usertransport"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/twinj/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	fs := flag.NewFlagSet("taskdesk", flag.ExitOnError)
	var (
		httpAddr = fs.String(
			"http.addr",
			getEnv("HTTP_ADDR", ":8080"),
			"HTTP listen address",
		)
		databaseURL = fs.String(
			"database.url",
			getEnv("DATABASE_URL", ""),
			"Postgres URL, sqlite file when empty",
		)
		sqlitePath = fs.String(
			"sqlite.path",
			getEnv("SQLITE_PATH", "taskdesk.db"),
			"sqlite database file",
		)
		denylistBackend = fs.String(
			"denylist",
			getEnv("DENYLIST", "memory"),
			"revoked credential store: memory, consul or redis",
		)
		consulAddr = fs.String(
			"consul.addr",
			getEnv("CONSUL_ADDR", ""),
			"Consul agent address",
		)
		consulRegister = fs.Bool(
			"consul.register",
			getEnv("CONSUL_REGISTER", "") == "true",
			"register the HTTP service with consul",
		)
		redisAddr = fs.String(
			"redis.addr",
			getEnv("REDIS_ADDR", "localhost:6379"),
			"Redis address",
		)
		pruneSpec = fs.String(
			"prune.spec",
			getEnv("PRUNE_SPEC", "@every 10m"),
			"cron schedule for dropping expired denylist entries",
		)
		bcryptCost = fs.Int(
			"bcrypt.cost",
			getEnvAsInt("BCRYPT_COST", usersvc.DefaultBcryptCost),
			"bcrypt cost for stored passwords",
		)
		shutdownTimeout = fs.Duration(
			"shutdown.timeout",
			getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			"grace period for in-flight requests",
		)
		seedEmail    = fs.String("seed.email", getEnv("SEED_ADMIN_EMAIL", ""), "email of the administrator created at start")
		seedPassword = fs.String("seed.password", getEnv("SEED_ADMIN_PASSWORD", ""), "password of the seeded administrator")
		seedName     = fs.String("seed.name", getEnv("SEED_ADMIN_NAME", "Administrator"), "name of the seeded administrator")
		logLevel     = fs.String("log.level", getEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	)

	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
		logger = level.NewFilter(logger, levelOption(*logLevel))
	}

	var db *libgorm.DB
	{
		config := &libgorm.Config{
			Logger: gormlogger.New(
				stdlog.New(log.NewStdlibAdapter(level.Warn(log.With(logger, "component", "gorm"))), "", 0),
				gormlogger.Config{
					SlowThreshold:             time.Second,
					LogLevel:                  gormlogger.Warn,
					IgnoreRecordNotFoundError: true,
				},
			),
		}
		var err error
		if *databaseURL != "" {
			db, err = libgorm.Open(postgres.Open(*databaseURL), config)
		} else {
			db, err = libgorm.Open(sqlite.Open(*sqlitePath), config)
		}
		if err != nil {
			level.Error(logger).Log("during", "Open", "err", err)
			os.Exit(1)
		}
		if err := db.AutoMigrate(&usersvc.Account{}, &tasksvc.Task{}, &tasksvc.Comment{}); err != nil {
			level.Error(logger).Log("during", "AutoMigrate", "err", err)
			os.Exit(1)
		}
	}

	var (
		accountRepository = usergorm.NewAccountRepository(db)
		taskRepository    = taskgorm.NewTaskRepository(db)
		commentRepository = taskgorm.NewCommentRepository(db)
		hasher            = usersvc.NewPasswordHasher(*bcryptCost)
	)

	if *seedEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := userservice.SeedAdmin(ctx, accountRepository, hasher, *seedName, *seedEmail, *seedPassword)
		cancel()
		if err != nil {
			level.Error(logger).Log("during", "SeedAdmin", "err", err)
			os.Exit(1)
		}
		level.Info(logger).Log("seed", *seedEmail, "created", created)
	}

	var consulClient *api.Client
	if *denylistBackend == "consul" || *consulRegister {
		consulConfig := api.DefaultConfig()
		if len(*consulAddr) > 0 {
			consulConfig.Address = *consulAddr
		}
		var err error
		consulClient, err = api.NewClient(consulConfig)
		if err != nil {
			level.Error(logger).Log("during", "consul", "err", err)
			os.Exit(1)
		}
	}

	var denylist inmem.Client
	switch *denylistBackend {
	case "memory":
		denylist = inmem.NewMemoryClient()
	case "consul":
		denylist = inmem.NewClient(consulClient)
	case "redis":
		denylist = inmem.NewRedisClient(redis.NewClient(&redis.Options{Addr: *redisAddr}))
	default:
		level.Error(logger).Log("err", fmt.Sprintf("unknown denylist backend %q", *denylistBackend))
		os.Exit(1)
	}

	pruner, err := inmem.NewPruner(denylist, *pruneSpec, log.With(logger, "component", "denylist"))
	if err != nil {
		level.Error(logger).Log("during", "NewPruner", "err", err)
		os.Exit(1)
	}

	fieldKeys := []string{"method"}
	counter := func(subsystem string) *kitprometheus.Counter {
		return kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "taskdesk",
			Subsystem: subsystem,
			Name:      "request_count",
			Help:      "Number of requests received.",
		}, fieldKeys)
	}
	latency := func(subsystem string) *kitprometheus.Summary {
		return kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: "taskdesk",
			Subsystem: subsystem,
			Name:      "request_latency_microseconds",
			Help:      "Total duration of requests in microseconds.",
		}, fieldKeys)
	}

	var (
		authService = authservice.New(
			accountRepository, hasher, authservice.NewTokenizer(nil), denylist,
			log.With(logger, "service", "auth"), counter("auth_service"), latency("auth_service"),
		)
		taskService = taskservice.New(
			taskRepository, commentRepository, tasksvc.NewOwnerDirectory(accountRepository),
			log.With(logger, "service", "task"), counter("task_service"), latency("task_service"),
		)
		userService = userservice.New(
			accountRepository, taskRepository, hasher,
			log.With(logger, "service", "user"), counter("user_service"), latency("user_service"),
		)
	)

	r := mux.NewRouter()
	authtransport.NewHTTPHandler(r, authendpoint.New(authService, logger), denylist, logger)
	tasktransport.NewHTTPHandler(r, taskendpoint.New(taskService, logger), denylist, logger)
	usertransport.NewHTTPHandler(r, userendpoint.New(userService, logger), denylist, logger)
	r.Methods("GET").Path("/health").HandlerFunc(health)
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	var registrar *consulsd.Registrar
	if *consulRegister {
		host, port, err := net.SplitHostPort(*httpAddr)
		if err != nil {
			level.Error(logger).Log("during", "SplitHostPort", "err", err)
			os.Exit(1)
		}
		if host == "" {
			host = "localhost"
		}
		p, _ := strconv.Atoi(port)
		asr := &api.AgentServiceRegistration{
			ID:      uuid.NewV4().String(),
			Name:    "taskdesk",
			Address: host,
			Port:    p,
			Check: &api.AgentServiceCheck{
				HTTP:     fmt.Sprintf("http://%s:%d/health", host, p),
				Interval: "10s",
				Timeout:  "2s",
			},
		}
		registrar = consulsd.NewRegistrar(consulsd.NewClient(consulClient), asr, logger)
	}

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", *httpAddr)
		if err != nil {
			level.Error(logger).Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		server := &http.Server{Handler: r}
		g.Add(func() error {
			if registrar != nil {
				registrar.Register()
			}
			level.Info(logger).Log("transport", "HTTP", "addr", *httpAddr)
			return server.Serve(httpListener)
		}, func(error) {
			if registrar != nil {
				registrar.Deregister()
			}
			ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
			defer cancel()
			server.Shutdown(ctx)
		})
	}
	{
		cancelPrune := make(chan struct{})
		g.Add(func() error {
			pruner.Start()
			<-cancelPrune
			return nil
		}, func(error) {
			pruner.Stop()
			close(cancelPrune)
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	level.Info(logger).Log("exit", g.Run())
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func levelOption(name string) level.Option {
	switch name {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	if v, err := time.ParseDuration(value); err == nil {
		return v
	}
	return fallback
}
