package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileEnv = "CONFIG_FILE"
	envPrefix     = "SILVERAN_"

	defaultConfigFile = "/config/silveran.yaml"
)

type Config struct {
	// LibraryRoot is laid out as <root>/<book>/<category>/<file>.
	LibraryRoot string `koanf:"library_root" json:"library_root" validate:"required"`
	DataDir     string `koanf:"data_dir" json:"data_dir" default:"./data"`

	DatabaseFilePath          string        `koanf:"database_file_path" json:"database_file_path"`
	DatabaseDebug             bool          `koanf:"database_debug" json:"database_debug"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" json:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" json:"database_connect_retry_delay" default:"2s"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" json:"database_busy_timeout" default:"5s"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" json:"database_max_retries" default:"5"`

	CatalogCachePath string `koanf:"catalog_cache_path" json:"catalog_cache_path"`
	TransferTempDir  string `koanf:"transfer_temp_dir" json:"transfer_temp_dir"`
	QueueLockPath    string `koanf:"queue_lock_path" json:"queue_lock_path"`

	// RemoteURL is optional; without it the library works from local files
	// only.
	RemoteURL   string        `koanf:"remote_url" json:"remote_url" validate:"omitempty,url"`
	RemoteToken string        `koanf:"remote_token" json:"-"`
	HTTPTimeout time.Duration `koanf:"http_timeout" json:"http_timeout" default:"30s"`

	ServerHost string `koanf:"server_host" json:"server_host" default:"0.0.0.0"`
	ServerPort int    `koanf:"server_port" json:"server_port" default:"5566" validate:"min=1,max=65535"`

	SyncInterval    time.Duration `koanf:"sync_interval" json:"sync_interval" default:"1m"`
	RefreshInterval time.Duration `koanf:"refresh_interval" json:"refresh_interval" default:"15m"`
	RetryBaseDelay  time.Duration `koanf:"retry_base_delay" json:"retry_base_delay" default:"5s"`
	RetryMaxDelay   time.Duration `koanf:"retry_max_delay" json:"retry_max_delay" default:"10m"`
	PartialMaxAge   time.Duration `koanf:"partial_max_age" json:"partial_max_age" default:"168h"`

	VerifyMimeTypes bool `koanf:"verify_mime_types" json:"verify_mime_types" default:"true"`
	// CoverFallbacks overrides the archive paths probed for a cover image
	// when the package document doesn't name one.
	CoverFallbacks []string `koanf:"cover_fallbacks" json:"cover_fallbacks"`
}

// New loads the YAML file named by CONFIG_FILE (if it exists) and then
// SILVERAN_* environment variables on top of it.
func New() (*Config, error) {
	k := koanf.New(".")

	path := os.Getenv(configFileEnv)
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config from environment")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	cfg.fillDerivedPaths()

	return cfg, nil
}

// NewForTest returns a config rooted in dir that never touches the
// environment.
func NewForTest(dir string) *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.LibraryRoot = filepath.Join(dir, "library")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.ServerHost = "127.0.0.1"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.RetryBaseDelay = 0
	cfg.RetryMaxDelay = 0
	cfg.fillDerivedPaths()
	return cfg
}

func (c *Config) fillDerivedPaths() {
	if c.DatabaseFilePath == "" {
		c.DatabaseFilePath = filepath.Join(c.DataDir, "silveran.sqlite")
	}
	if c.CatalogCachePath == "" {
		c.CatalogCachePath = filepath.Join(c.DataDir, "catalog.bolt")
	}
	if c.TransferTempDir == "" {
		c.TransferTempDir = filepath.Join(c.DataDir, "transfers")
	}
	if c.QueueLockPath == "" {
		c.QueueLockPath = filepath.Join(c.DataDir, "progress-sync.lock")
	}
}

func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("koanf")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.WithStack(err)
	}

	fe := verrs[0]
	key := fe.Field()
	envName := envPrefix + strings.ToUpper(key)
	if fe.Tag() == "required" {
		return errors.Errorf("missing required config: set %s or %s in the config file", envName, key)
	}
	return errors.Errorf("invalid config value for %s (%s): failed %q", key, envName, fe.Tag())
}
