package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/sftp-transport/fs"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/sftp"
)

// EnvPrefix prefixes every environment variable read by sftpctl (SFTP_HOST, ...).
const EnvPrefix = "SFTP"

// Config is the connection and logging setup shared by every command.
type Config struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	KeyFile    string        `yaml:"key_file" split_words:"true"`
	Passphrase string        `yaml:"passphrase"`
	KnownHosts string        `yaml:"known_hosts" split_words:"true"`
	Insecure   bool          `yaml:"insecure"`
	Timeout    time.Duration `yaml:"timeout"`
	LogLevel   string        `yaml:"log_level" split_words:"true"`
	LogBackend string        `yaml:"log_backend" split_words:"true"`

	// Serve configures the local server started by "sftpctl serve".
	Serve ServeConfig `yaml:"serve"`
}

type ServeConfig struct {
	Listen  string    `yaml:"listen"`
	HostKey string    `yaml:"host_key" split_words:"true"`
	Access  fs.Access `yaml:"access" ignored:"true"`
}

func defaultConfig() *Config {
	return &Config{
		Port:       sftp.DefaultPort,
		Timeout:    sftp.DefaultTimeout,
		LogLevel:   "warn",
		LogBackend: log.BackendZap,
		Serve: ServeConfig{
			Listen: "127.0.0.1:2022",
			Access: fs.Access{Fs: fs.TypeOs, BasePath: "."},
		},
	}
}

// LoadConfig builds the configuration from, in increasing priority, the defaults,
// confFile (YAML or JSON, optional) and the environment. A .env file in the
// working directory is loaded into the environment first.
func LoadConfig(confFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if confFile != "" {
		content, err := os.ReadFile(confFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", confFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Settings turns the configuration into client settings, reading the key file.
func (c *Config) Settings() (sftp.Settings, error) {
	settings := sftp.Settings{
		Host:                  c.Host,
		Port:                  c.Port,
		Username:              c.User,
		Password:              c.Password,
		Passphrase:            c.Passphrase,
		KnownHostsFile:        c.KnownHosts,
		InsecureIgnoreHostKey: c.Insecure,
		Timeout:               c.Timeout,
	}
	if c.Host == "" {
		return settings, fmt.Errorf("no host configured: use --host or %s_HOST", EnvPrefix)
	}
	if c.KeyFile != "" {
		key, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return settings, fmt.Errorf("read key file: %w", err)
		}
		settings.PrivateKey = key
	}
	return settings, nil
}

// Logger builds the logger selected by LogBackend and LogLevel.
func (c *Config) Logger() (log.Logger, error) {
	return log.New(c.LogBackend, c.LogLevel)
}
