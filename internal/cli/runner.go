package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/g960059/presencewatch/internal/config"
	"github.com/g960059/presencewatch/internal/locksource"
	"github.com/g960059/presencewatch/internal/presence"
	"github.com/g960059/presencewatch/internal/watch"
)

type presenceAPI interface {
	GetStatus(ctx context.Context) (string, error)
	SetStatus(ctx context.Context, status string) error
}

type Runner struct {
	cfg    config.Config
	client presenceAPI
	source locksource.Source
	out    io.Writer
	errOut io.Writer
}

func NewRunner(cfg config.Config, out, errOut io.Writer) *Runner {
	client := presence.New(cfg.BaseURL, cfg.Token, cfg.HTTPTimeout)
	return NewRunnerWithDeps(cfg, client, locksource.NewDBusSource(), out, errOut)
}

func NewRunnerWithDeps(cfg config.Config, client presenceAPI, source locksource.Source, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{
		cfg:    cfg,
		client: client,
		source: source,
		out:    out,
		errOut: errOut,
	}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) == 0 && r.cfg.DefaultCommand != "" {
		args = strings.Fields(r.cfg.DefaultCommand)
	}
	if len(args) == 0 {
		r.printUsage()
		return 1
	}
	switch args[0] {
	case "get":
		return r.runGet(ctx)
	case "set":
		return r.runSet(ctx, args[1:])
	case "watch":
		return r.runWatch(ctx, args[1:])
	case "debug":
		return r.runDebug(ctx)
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", args[0])
		r.printUsage()
		return 1
	}
}

func (r *Runner) runGet(ctx context.Context) int {
	status, err := r.client.GetStatus(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, status)
	return 0
}

func (r *Runner) runSet(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: presencewatch set <status>")
		return 1
	}
	// passed through verbatim; the API decides what is legal
	if err := r.client.SetStatus(ctx, args[0]); err != nil {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) runWatch(ctx context.Context, args []string) int {
	logger := newWatchLogger(r.errOut, args)
	defer logger.Sync() //nolint:errcheck

	logger.Info("watcher starting")
	loop := watch.New(r.source, r.client, logger)
	if r.cfg.RestartDelay > 0 {
		loop = loop.WithRestartDelay(r.cfg.RestartDelay)
	}
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return r.handleErr(err)
	}
	logger.Info("watcher stopped")
	return 0
}

// runDebug dumps the decoded lock-event stream to stdout for one
// monitor lifetime. Same source and filter path as watch, no API
// calls.
func (r *Runner) runDebug(ctx context.Context) int {
	stream, err := r.source.Start(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer stream.Close() //nolint:errcheck

	filter := locksource.NewFilter(stream)
	for {
		locked, ok := filter.Next()
		if !ok {
			return 0
		}
		if locked {
			_, _ = fmt.Fprintln(r.out, "locked")
		} else {
			_, _ = fmt.Fprintln(r.out, "unlocked")
		}
	}
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: presencewatch <get|set|watch|debug> ...")
}

// newWatchLogger builds the structured logger for the long-running
// watch path: timestamped JSON tagged with the invoking user, pid,
// and a fresh id per watcher run. Extra CLI args become tags.
func newWatchLogger(w io.Writer, tags []string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zap.InfoLevel)
	logger := zap.New(core).With(
		zap.Int("pid", os.Getpid()),
		zap.String("user", invokingUser()),
		zap.String("watch_id", uuid.NewString()),
	)
	if len(tags) > 0 {
		logger = logger.With(zap.Strings("tags", tags))
	}
	return logger
}

func invokingUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
