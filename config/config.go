package config

import (
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "flasheng.yml"
	EnvPrefix         = "FLASHENG"
)

// DBConfig connection settings for one logical resource.
// An empty Dsn on an optional resource means it shares the orders store.
type DBConfig struct {
	Type     string `yaml:"type" json:"type"` // postgres | sqlite
	Dsn      string `yaml:"dsn" json:"dsn"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// DatabaseConfig one entry per partitioned resource
type DatabaseConfig struct {
	Users      DBConfig `yaml:"users" json:"users"`
	Flashcards DBConfig `yaml:"flashcards" json:"flashcards"`
	Catalog    DBConfig `yaml:"catalog" json:"catalog"`
	Orders     DBConfig `yaml:"orders" json:"orders"`
}

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
	Fixtures bool   `yaml:"fixtures" json:"fixtures"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type ReconcileConfig struct {
	// Journal bbolt file name, relative to the workdir unless absolute
	Journal string `yaml:"journal" json:"journal"`
	// Sweep cron spec for the reconciliation report job
	Sweep string `yaml:"sweep" json:"sweep"`
}

type AppConfig struct {
	System    SysConfig       `yaml:"system" json:"system"`
	Web       WebConfig       `yaml:"web" json:"web"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Logger    LogConfig       `yaml:"logger" json:"logger"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// JournalPath resolves the reconciliation journal location
func (c *AppConfig) JournalPath() string {
	if path.IsAbs(c.Reconcile.Journal) {
		return c.Reconcile.Journal
	}
	return path.Join(c.GetDataDir(), c.Reconcile.Journal)
}

// InitDirs creates the working directories
func (c *AppConfig) InitDirs() error {
	for _, dir := range []string{c.GetLogDir(), c.GetDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return nil
}

// DefaultAppConfig development defaults: every resource on its own sqlite file
var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "FlashEng",
		Location: "Europe/London",
		Workdir:  "/var/flasheng",
		Debug:    true,
		Fixtures: true,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 5080,
	},
	Database: DatabaseConfig{
		Users:      DBConfig{Type: "sqlite", Dsn: "flasheng_users.db", MaxConn: 20, IdleConn: 5},
		Flashcards: DBConfig{Type: "sqlite", Dsn: "flasheng_flashcards.db", MaxConn: 20, IdleConn: 5},
		Catalog:    DBConfig{},
		Orders:     DBConfig{Type: "sqlite", Dsn: "flasheng_orders.db", MaxConn: 20, IdleConn: 5},
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/flasheng/logs/flasheng.log",
	},
	Reconcile: ReconcileConfig{
		Journal: "reconcile.db",
		Sweep:   "@every 1m",
	},
}

func defaultCopy() *AppConfig {
	cfg := *DefaultAppConfig
	return &cfg
}

// LoadConfig loads defaults, then the yaml file when present, then FLASHENG_* environment overrides
func LoadConfig(cfile string) (*AppConfig, error) {
	if cfile == "" {
		cfile = DefaultConfigFile
	}
	cfg := defaultCopy()
	data, err := os.ReadFile(cfile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config %s", cfile)
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setEnvString(&cfg.System.Appid, "SYSTEM_APPID")
	setEnvString(&cfg.System.Location, "SYSTEM_LOCATION")
	setEnvString(&cfg.System.Workdir, "SYSTEM_WORKDIR")
	setEnvBool(&cfg.System.Debug, "SYSTEM_DEBUG")
	setEnvBool(&cfg.System.Fixtures, "SYSTEM_FIXTURES")

	setEnvString(&cfg.Web.Host, "WEB_HOST")
	setEnvInt(&cfg.Web.Port, "WEB_PORT")

	applyDBEnv(&cfg.Database.Users, "USERS")
	applyDBEnv(&cfg.Database.Flashcards, "FLASHCARDS")
	applyDBEnv(&cfg.Database.Catalog, "CATALOG")
	applyDBEnv(&cfg.Database.Orders, "ORDERS")

	setEnvString(&cfg.Logger.Mode, "LOGGER_MODE")
	setEnvBool(&cfg.Logger.FileEnable, "LOGGER_FILE_ENABLE")
	setEnvString(&cfg.Logger.Filename, "LOGGER_FILENAME")

	setEnvString(&cfg.Reconcile.Journal, "RECONCILE_JOURNAL")
	setEnvString(&cfg.Reconcile.Sweep, "RECONCILE_SWEEP")
}

func applyDBEnv(db *DBConfig, name string) {
	prefix := "DB_" + name + "_"
	setEnvString(&db.Type, prefix+"TYPE")
	setEnvString(&db.Dsn, prefix+"DSN")
	setEnvInt(&db.MaxConn, prefix+"MAX_CONN")
	setEnvInt(&db.IdleConn, prefix+"IDLE_CONN")
	setEnvBool(&db.Debug, prefix+"DEBUG")
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + "_" + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setEnvString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setEnvInt(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if i, err := cast.ToIntE(v); err == nil {
			*dst = i
		}
	}
}

func setEnvBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			*dst = b
		}
	}
}
