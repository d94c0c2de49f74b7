package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authtest"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/metrics"
	"github.com/jrsteele09/go-session-client/permissions"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/tokenstore"
)

type options struct {
	fake        bool
	logout      bool
	get         string
	metricsAddr string
}

func main() {
	var opts options
	flag.BoolVar(&opts.fake, "fake", false, "run against an in-process fake back office")
	flag.BoolVar(&opts.logout, "logout", false, "clear the stored session and exit")
	flag.StringVar(&opts.get, "get", "", "protected path to GET through the session client (defaults to the rates resource with -fake)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("session check failed")
	}
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	c, err := config.New()
	if err != nil {
		return err
	}
	logger := logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	baseURL, endpoints := c.GetAPIBaseURL(), authapi.EndpointsFromConfig(c)
	var backend tokenstore.Backend
	if opts.fake {
		fake, err := authtest.New()
		if err != nil {
			return err
		}
		defer fake.Close()
		baseURL, endpoints = fake.URL(), fake.Endpoints()
		if opts.get == "" {
			opts.get = authtest.RatesPath
		}
		// Fake tokens die with the process; do not leave them in the durable store.
		backend = tokenstore.NewMemory()
		logger.Info().Str("url", baseURL).Msg("fake back office started")
	} else {
		b, closer, err := tokenstore.OpenBackend(c)
		if err != nil {
			return fmt.Errorf("open token store: %w", err)
		}
		defer closer.Close()
		backend = b
	}

	api, err := authapi.New(baseURL, endpoints,
		authapi.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
		authapi.WithLogger(logging.Component("authapi")),
	)
	if err != nil {
		return err
	}

	mgr, err := session.NewPrimary(api, backend, c,
		session.WithMetrics(collectors),
		session.WithLogger(logging.Component("session")),
	)
	if err != nil {
		return err
	}

	cache := permissions.NewCache(permissions.NewHTTPFetcher(mgr, api),
		permissions.WithMetrics(collectors),
		permissions.WithTimeout(c.GetHTTPTimeout()),
	)
	unbind := permissions.Bind(mgr, cache)
	defer unbind()

	if err := mgr.Hydrate(ctx); err != nil {
		logger.Warn().Err(err).Msg("stored session discarded")
	}

	if opts.logout {
		if err := mgr.Logout(ctx); err != nil {
			return err
		}
		logger.Info().Msg("logged out")
		return nil
	}

	if !mgr.IsLoggedIn() {
		if err := login(ctx, mgr, opts.fake, os.Stdin); err != nil {
			return err
		}
	}
	logger.Info().Str("user", mgr.Identity().DisplayName()).Msg("logged in")

	waitCtx, cancel := context.WithTimeout(ctx, c.GetHTTPTimeout())
	defer cancel()
	if err := cache.Wait(waitCtx); err != nil {
		logger.Warn().Err(err).Msg("permissions not resolved")
	}
	fmt.Printf("permissions: %s\n", strings.Join(cache.List(), ", "))

	if opts.get != "" {
		if err := get(ctx, mgr, api.URL(opts.get), logger); err != nil {
			return err
		}
	}

	if opts.metricsAddr != "" {
		return serveMetrics(ctx, opts.metricsAddr, reg)
	}
	return nil
}

func login(ctx context.Context, mgr *session.Manager, fake bool, stdin io.Reader) error {
	defaultUser, defaultPassword := "", ""
	if fake {
		defaultUser, defaultPassword = "alice", "correct"
	}
	username := config.GetEnv("SESSION_USERNAME", defaultUser)
	password := config.GetEnv("SESSION_PASSWORD", defaultPassword)
	if username == "" || password == "" {
		return errors.New("SESSION_USERNAME and SESSION_PASSWORD are required to log in")
	}

	outcome, err := mgr.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if outcome != session.OutcomeStepUpRequired {
		return nil
	}

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Print("MFA code: ")
		if !scanner.Scan() {
			_ = mgr.CancelMfa(ctx)
			return errors.New("no MFA code entered")
		}
		err := mgr.VerifyMfa(ctx, strings.TrimSpace(scanner.Text()))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, session.ErrMfaAttemptsExceeded), errors.Is(err, session.ErrMfaChallengeExpired):
			return err
		case session.IsAuthError(err):
			fmt.Println("code rejected, try again")
		default:
			return err
		}
	}
}

func get(ctx context.Context, mgr *session.Manager, url string, logger zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := mgr.HTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotRenewable) {
			logger.Warn().Msg("session expired, log in again")
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	fmt.Printf("GET %s -> %d\n%s\n", url, resp.StatusCode, strings.TrimSpace(string(body)))
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
