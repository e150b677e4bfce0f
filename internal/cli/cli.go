package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ben-ranford/reqmap/internal/app"
	"github.com/ben-ranford/reqmap/internal/diag"
)

const (
	exitOK          = 0
	exitRuntime     = 1
	exitUsage       = 2
	exitBuildFailed = 3
)

type Runner interface {
	Execute(ctx context.Context, req app.Request) (string, error)
}

type CLI struct {
	Runner Runner
	Out    io.Writer
	Err    io.Writer
}

func New(runner Runner, out io.Writer, errOut io.Writer) *CLI {
	return &CLI{
		Runner: runner,
		Out:    out,
		Err:    errOut,
	}
}

func (c *CLI) Run(ctx context.Context, args []string) int {
	cmd, err := ParseArgs(args)
	if err != nil {
		if errors.Is(err, ErrHelpRequested) {
			if _, writeErr := fmt.Fprint(c.Out, Usage()); writeErr != nil {
				return exitRuntime
			}
			return exitOK
		}
		if _, writeErr := fmt.Fprintf(c.Err, "error: %v\n\n", err); writeErr != nil {
			return exitRuntime
		}
		if _, writeErr := fmt.Fprint(c.Err, Usage()); writeErr != nil {
			return exitRuntime
		}
		return exitUsage
	}

	logger := newLogger(c.Err, cmd.LogLevel)
	previous := diag.Logger()
	diag.SetLogger(logger)
	defer func() {
		_ = logger.Sync()
		diag.SetLogger(previous)
	}()

	output, runErr := c.Runner.Execute(ctx, cmd.Request)
	if output != "" {
		if _, err := fmt.Fprint(c.Out, output); err != nil {
			return exitRuntime
		}
		if !strings.HasSuffix(output, "\n") {
			fmt.Fprintln(c.Out)
		}
	}

	if runErr != nil {
		fmt.Fprintln(c.Err, runErr.Error())
		if errors.Is(runErr, app.ErrBuildFailed) {
			return exitBuildFailed
		}
		return exitRuntime
	}
	return exitOK
}

// newLogger writes JSON log lines at level and above to w.
func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core).Named("reqmap")
}
