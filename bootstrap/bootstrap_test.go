package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/parstream/config"
	"github.com/kbukum/parstream/logger"
)

type testConfig struct {
	Base    config.BaseConfig
	Logging logger.Config
}

func (c *testConfig) GetBaseConfig() *config.BaseConfig { return &c.Base }
func (c *testConfig) GetLoggingConfig() *logger.Config  { return &c.Logging }
func (c *testConfig) ApplyDefaults() {
	c.Base.ApplyDefaults()
	c.Logging.ApplyDefaults()
}
func (c *testConfig) Validate() error { return c.Base.Validate() }

func newTestApp(t *testing.T, name string) *App[*testConfig] {
	t.Helper()
	app, err := NewApp(&testConfig{Base: config.BaseConfig{Name: name}}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t, "test-svc")
	if app.Name != "test-svc" {
		t.Errorf("expected name test-svc, got %q", app.Name)
	}
	if app.Version == "" {
		t.Error("expected version to default from build info")
	}
	if app.Cfg.Base.Environment != "development" {
		t.Errorf("expected defaults applied, got %q", app.Cfg.Base.Environment)
	}
}

func TestNewApp_RegistersComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, "svc", &buf)
	if _, err := NewApp(&testConfig{Base: config.BaseConfig{Name: "svc"}}, WithLogger(l)); err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	for _, name := range componentLoggers {
		buf.Reset()
		logger.Get(name).Info("hello")
		if !strings.Contains(buf.String(), `"component":"`+name+`"`) {
			t.Errorf("expected %s logger to write through the app logger, got %q", name, buf.String())
		}
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	_, err := NewApp(&testConfig{}, WithLogger(logger.Nop()))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "base.name") {
		t.Errorf("expected base.name in error, got %v", err)
	}
}

func TestRunTask_HookOrder(t *testing.T) {
	app := newTestApp(t, "svc")
	var order []string
	app.OnStart(func(context.Context) error { order = append(order, "start"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "stop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "start,task,stop" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestRunTask_StartHookFailureSkipsTask(t *testing.T) {
	app := newTestApp(t, "svc")
	app.OnStart(func(context.Context) error { return errors.New("no exporter") })

	ran := false
	err := app.RunTask(context.Background(), func(context.Context) error { ran = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "onStart hook failed") {
		t.Fatalf("expected start hook error, got %v", err)
	}
	if ran {
		t.Error("task must not run after a failed start hook")
	}
}

func TestRunTask_TaskErrorWins(t *testing.T) {
	app := newTestApp(t, "svc")
	errTask := errors.New("task")
	app.OnStop(func(context.Context) error { return errors.New("stop") })

	err := app.RunTask(context.Background(), func(context.Context) error { return errTask })
	if !errors.Is(err, errTask) {
		t.Errorf("expected task error, got %v", err)
	}
}

func TestRunTask_StopErrorReturned(t *testing.T) {
	app := newTestApp(t, "svc")
	errStop := errors.New("flush failed")
	app.OnStop(func(context.Context) error { return errStop })

	err := app.RunTask(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, errStop) {
		t.Errorf("expected stop error, got %v", err)
	}
}

func TestRunTask_ParentCancelReachesTask(t *testing.T) {
	app := newTestApp(t, "svc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := app.RunTask(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithGracefulTimeout(t *testing.T) {
	app, err := NewApp(&testConfig{Base: config.BaseConfig{Name: "svc"}},
		WithLogger(logger.Nop()), WithGracefulTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if app.gracefulTimeout != time.Second {
		t.Errorf("expected 1s, got %v", app.gracefulTimeout)
	}
}
