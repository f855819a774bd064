package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/postalhq/postal-go/internal/config"
	"github.com/postalhq/postal-go/internal/database"
	"github.com/postalhq/postal-go/internal/history"
	"github.com/postalhq/postal-go/internal/logger"
	"github.com/postalhq/postal-go/postal"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	out        io.Writer
	logOut     io.Writer
	configFile string

	cfg     *config.Config
	baseLog *logger.Logger
	log     *logger.Logger
	client  *postal.Client
	history *history.Store
	redis   *database.Redis
}

func newApp(out io.Writer) *app {
	return &app{out: out, logOut: os.Stderr}
}

// execute runs the command tree and releases connections whether or not
// the command failed.
func (a *app) execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "postal",
		Short:         "Send mail and inspect messages through a Postal server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./postal.yaml)")
	flags.String("address", "", "Postal server address (env POSTAL_ADDRESS)")
	flags.String("token", "", "Postal server API key (env POSTAL_TOKEN)")
	flags.Duration("timeout", 0, "deadline for each API call (env POSTAL_TIMEOUT, default 30s)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")

	rootCmd.AddCommand(
		newSendCmd(a),
		newSendRawCmd(a),
		newDetailsCmd(a),
		newDeliveriesCmd(a),
		newHistoryCmd(a),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.baseLog = logger.NewWithWriter(a.logOut, cfg.Log.Level, cfg.Log.Format).WithComponent(cmd.Name())
	a.log = a.baseLog
	return nil
}

func (a *app) close() error {
	if a.redis != nil {
		err := a.redis.Close()
		a.redis = nil
		return err
	}
	return nil
}

// postalClient builds the API client on first use.
func (a *app) postalClient() (*postal.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := postal.New(a.cfg.Address, a.cfg.Token, postal.WithLogger(a.baseLog.Logger))
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// historyStore connects to Redis on first use. It returns nil when history
// is disabled.
func (a *app) historyStore(ctx context.Context) (*history.Store, error) {
	if a.history != nil || !a.cfg.History.Enabled {
		return a.history, nil
	}
	rdb, err := database.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = rdb
	a.history = history.NewStore(rdb, a.cfg.History.Key, a.cfg.History.MaxEntries, a.log)
	return a.history, nil
}

// callContext applies the configured per-call deadline and tags the call
// with a request id shared by the X-Request-ID header and the CLI's own log
// lines.
func (a *app) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	requestID := uuid.New().String()
	a.log = a.baseLog.WithRequestID(requestID)
	ctx = postal.ContextWithRequestID(ctx, requestID)
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// resolveID returns the message id from args, or the most recent history
// entry when last is set.
func (a *app) resolveID(ctx context.Context, args []string, last bool) (postal.MessageID, error) {
	if last {
		store, err := a.historyStore(ctx)
		if err != nil {
			return 0, err
		}
		if store == nil {
			return 0, errors.New("--last requires history to be enabled (POSTAL_HISTORY_ENABLED=true)")
		}
		entry, err := store.Last(ctx)
		if err != nil {
			return 0, err
		}
		return entry.MessageID, nil
	}
	if len(args) != 1 {
		return 0, errors.New("expected exactly one message id (or --last)")
	}
	return postal.ParseMessageID(args[0])
}

// reportError logs API errors with their server code before returning them.
func (a *app) reportError(err error) error {
	if apiErr, ok := postal.IsAPIError(err); ok {
		a.log.Rejected("", apiErr.Code, apiErr.Message)
	}
	return err
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// parseHeaders turns KEY=VALUE pairs into a map.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected KEY=VALUE", pair)
		}
		headers[key] = value
	}
	return headers, nil
}
