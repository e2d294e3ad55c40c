// Package cli glues the migration runner to the command line tool: it reads
// the YAML configuration, resolves the database driver from the URL and
// exposes the runner operations as commands.
package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/strata-db/strata"
)

type (
	CloserFunc func() error

	Config struct {
		DatabaseURL      string
		MigrationsFolder string
		MigrationsTable  string
		NoColor          bool
	}

	ActionConfig struct {
		Steps   int
		Pretend bool
	}

	App struct {
		runner *strata.Runner
	}
)

func NewFromYaml(path string) (*App, CloserFunc, error) {
	cfg, err := createConfigFromYaml(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg)
}

func New(cfg Config) (*App, CloserFunc, error) {
	r, closer, err := createRunner(cfg)
	if err != nil {
		return nil, nil, err
	}

	return &App{runner: r}, closer, nil
}

func (app *App) CreateMigration(name, table string, create bool) (string, error) {
	return app.runner.Generate(name, table, create)
}

func (app *App) Migrate(ctx context.Context, cfg ActionConfig) ([]string, error) {
	if err := app.runner.Load(ctx); err != nil {
		return nil, err
	}

	return app.runner.Migrate(ctx, configurators(cfg)...)
}

func (app *App) Rollback(ctx context.Context, cfg ActionConfig) ([]string, error) {
	if err := app.runner.Load(ctx); err != nil {
		return nil, err
	}

	return app.runner.Rollback(ctx, configurators(cfg)...)
}

func (app *App) Reset(ctx context.Context, cfg ActionConfig) ([]string, error) {
	if err := app.runner.Load(ctx); err != nil {
		return nil, err
	}

	return app.runner.Reset(ctx, configurators(cfg)...)
}

func (app *App) Refresh(ctx context.Context, cfg ActionConfig) (rolledBack, migrated []string, err error) {
	if err := app.runner.Load(ctx); err != nil {
		return nil, nil, err
	}

	return app.runner.Refresh(ctx, configurators(cfg)...)
}

func (app *App) Status(ctx context.Context) ([]strata.Status, error) {
	if err := app.runner.Load(ctx); err != nil {
		return nil, err
	}

	return app.runner.Status(ctx)
}

// InitCfg writes a starter configuration file to path.
func InitCfg(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()

	r := strings.NewReader(configFileStub)

	if _, err := io.Copy(f, r); err != nil {
		return err
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

func configurators(cfg ActionConfig) []strata.ActionConfigurator {
	var cfs []strata.ActionConfigurator
	if cfg.Steps > 0 {
		cfs = append(cfs, strata.WithSteps(cfg.Steps))
	}

	if cfg.Pretend {
		cfs = append(cfs, strata.WithPretend())
	}

	return cfs
}
