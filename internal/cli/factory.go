package cli

import (
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
	"gopkg.in/yaml.v2"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/sqlschema"
)

type (
	runnerFactory    func(cfg Config, u *dburl.URL) (*strata.Runner, CloserFunc, error)
	runnerFactoryMap map[string]runnerFactory

	migrations struct {
		LocalFolder string `yaml:"local_folder"`
		DatabaseURL string `yaml:"database_url"`
		Table       string `yaml:"table"`
	}

	configFile struct {
		Version    string     `yaml:"version"`
		Migrations migrations `yaml:"migrations"`
	}
)

const configFileStub = `version: "1.0"
migrations:
  local_folder: "%%MIGRATIONS_FOLDER%%"
  database_url: "%%DATABASE_URL%%"
  table: "migrations"
`

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read strata configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse strata configuration file")
	}

	cfg.DatabaseURL = expandEnv(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = expandEnv(cfgFile.Migrations.LocalFolder)
	cfg.MigrationsTable = expandEnv(cfgFile.Migrations.Table)

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("database url was not defined")
	}

	if cfg.MigrationsFolder == "" {
		return cfg, errors.New("migrations folder was not defined")
	}

	if cfg.MigrationsTable == "" {
		cfg.MigrationsTable = strata.DefaultMigrationsTable
	}

	return cfg, nil
}

// expandEnv resolves values of the form %%NAME%% from the environment;
// anything else is taken literally.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.ReplaceAll(v, "%%", ""))
	}

	return v
}

func createRunner(cfg Config) (*strata.Runner, CloserFunc, error) {
	u, err := dburl.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not parse database url [%s]", cfg.DatabaseURL)
	}

	factoryMap := runnerFactoryMap{
		"mysql":   createSQLRunner,
		"sqlite3": createSQLRunner,
	}

	factory, ok := factoryMap[u.Driver]
	if !ok {
		return nil, nil, errors.Errorf("could not find factory for driver [%s]", u.Driver)
	}

	return factory(cfg, u)
}

func createSQLRunner(cfg Config, u *dburl.URL) (*strata.Runner, CloserFunc, error) {
	conn, err := sqlschema.Connect(
		u.Driver,
		u.DSN,
		sqlschema.NewDefaultConnectOptions(),
		sqlschema.WithLogger(stdoutLogger(cfg)),
	)
	if err != nil {
		return nil, nil, err
	}

	loggerOpt := strata.UseColorLogger
	if cfg.NoColor {
		loggerOpt = strata.UseBWLogger
	}

	// the logger option comes first so the source picks it up
	r, err := strata.NewRunner(
		conn,
		loggerOpt(log.New(os.Stdout, "", 0), true, false),
		strata.UseMigrationsTable(cfg.MigrationsTable),
		strata.UseLocalFolderSource(cfg.MigrationsFolder),
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return r, conn.Close, nil
}

func stdoutLogger(cfg Config) logger.Logger {
	p := log.New(os.Stdout, "", 0)
	if cfg.NoColor {
		return logger.NewBWLogger(p, true, false)
	}

	return logger.NewColorLogger(p, true, false)
}
