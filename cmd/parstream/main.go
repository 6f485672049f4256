// Command parstream runs a fleet of concurrent producers through an ordered
// parallel stream and reports what the consumer observed.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/parstream/bootstrap"
	"github.com/kbukum/parstream/config"
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
)

func main() {
	var cfg AppConfig
	if err := config.LoadConfig("parstream", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if cfg.Meter.Enabled() {
		app.OnStart(func(ctx context.Context) error {
			mp, err := observability.InitMeter(ctx, &cfg.Meter)
			if err != nil {
				return err
			}
			app.OnStop(mp.Shutdown)
			return nil
		})
	}

	if cfg.Tracer.Enabled() {
		app.OnStart(func(ctx context.Context) error {
			tp, err := observability.InitTracer(ctx, &cfg.Tracer)
			if err != nil {
				return err
			}
			app.OnStop(tp.Shutdown)
			return nil
		})
	}

	err = app.RunTask(context.Background(), func(ctx context.Context) error {
		metrics, err := observability.NewStreamMetrics(observability.Meter("parstream"))
		if err != nil {
			return err
		}
		report, err := run(ctx, &cfg, app.Logger, metrics)
		if err != nil {
			return err
		}
		app.Logger.Info("run complete", report.fields())
		return nil
	})
	if err != nil {
		logger.Error("run failed", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
}
