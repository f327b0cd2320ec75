// Command sentry runs a Watchtower-Sentry anomaly-detection pipeline
// described by a configuration file. Exit codes: 0 success, 1
// user/configuration error, 255 internal error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/errors"
	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/observability"
	"github.com/kbukum/watchtower-sentry/pipeline"

	// register the pipeline modules
	_ "github.com/kbukum/watchtower-sentry/filters"
	_ "github.com/kbukum/watchtower-sentry/sinks"
	_ "github.com/kbukum/watchtower-sentry/sources"
)

const (
	exitOK       = 0
	exitUser     = 1
	exitInternal = 255
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (status int) {
	fs := flag.NewFlagSet("sentry", flag.ContinueOnError)
	var configFile, logLevel, debugGlob string
	fs.StringVar(&configFile, "c", "", "name of configuration file")
	fs.StringVar(&configFile, "configfile", "", "name of configuration file")
	fs.StringVar(&logLevel, "L", "INFO", "logging level")
	fs.StringVar(&logLevel, "loglevel", "INFO", "logging level")
	fs.StringVar(&debugGlob, "debug-glob", "", "convert a glob to a regex and exit")
	if err := fs.Parse(args); err != nil {
		return exitUser
	}

	if debugGlob != "" {
		re, err := glob.ToRegex(debugGlob)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUser
		}
		fmt.Println(re.String())
		return exitOK
	}

	log := logger.New(&logger.Config{
		Level:     strings.ToLower(logLevel),
		Format:    "console",
		Output:    "stderr",
		Timestamp: true,
	}, "sentry")

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic", map[string]interface{}{"recovered": fmt.Sprintf("%v", r)})
			status = exitInternal
		}
	}()

	if configFile == "" {
		log.Error("missing required flag -c/--configfile")
		return exitUser
	}

	doc, err := config.Load(configFile)
	if err != nil {
		log.Error("loading config", map[string]interface{}{"error": err.Error()})
		return exitUser
	}
	if doc.LogLevel != "" {
		log = log.WithLevel(doc.LogLevel)
	}

	runnable, err := config.Build(doc, pipeline.Default, log)
	if err != nil {
		log.Error("building pipeline", map[string]interface{}{"error": err.Error()})
		return exitUser
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
	defer span.End()

	if err := runnable.Run(ctx); err != nil {
		observability.SetSpanError(ctx, err)
		log.Error("pipeline failed", map[string]interface{}{"error": err.Error()})
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps a runtime error onto the CLI contract: configuration-class
// AppErrors are user errors, everything else is internal.
func exitCode(err error) int {
	if app, ok := errors.AsAppError(err); ok {
		switch app.Code {
		case errors.ErrCodeConfigSchema, errors.ErrCodeConfigRole,
			errors.ErrCodeUnknownModule, errors.ErrCodeInvalidGlob,
			errors.ErrCodeInvalidInput, errors.ErrCodeMissingField:
			return exitUser
		}
	}
	return exitInternal
}
