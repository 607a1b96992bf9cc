package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Host             string             `yaml:"host"`
	Secure           bool               `yaml:"secure"`
	Protocol         string             `yaml:"protocol"`
	TopN             int                `yaml:"topN" envconfig:"TOP_N"`
	Filepath         string             `yaml:"filepath"`
	Question         string             `yaml:"question"`
	LogLevel         string             `yaml:"logLevel" split_words:"true"`
	Color            string             `yaml:"color"`
	RequestTimeout   time.Duration      `yaml:"requestTimeout" split_words:"true"`
	HandshakeTimeout time.Duration      `yaml:"handshakeTimeout" split_words:"true"`
	Relay            RelaySpecification `yaml:"relay"`

	flags *pflag.FlagSet `ignored:"true"`
}

type RelaySpecification struct {
	Port           int    `yaml:"port"`
	BackendURL     string `yaml:"backendURL" envconfig:"BACKEND_URL"`
	BackendHTTPURL string `yaml:"backendHTTPURL" envconfig:"BACKEND_HTTP_URL"`
}

const envPrefix = "ANNSEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover. args are the command line
// arguments without the program name.
func Load(configPath string, fs *pflag.FlagSet, args []string) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		path = configFromArgs(args)
	}
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/annsearch.yaml",
				"config/config.yaml",
				"./annsearch.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(args); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// ---------- helpers ----------

func validate(cfg *Specification) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("ANNSEARCH_HOST is required (env/file/flag)")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	switch strings.ToLower(cfg.Protocol) {
	case "legacy", "extended":
	case "":
		cfg.Protocol = "extended"
	default:
		return fmt.Errorf("protocol must be legacy or extended, got %q", cfg.Protocol)
	}
	switch strings.ToLower(cfg.Color) {
	case "auto", "always", "never":
	case "":
		cfg.Color = "auto"
	default:
		return fmt.Errorf("color must be auto, always or never, got %q", cfg.Color)
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// configFromArgs finds --config before the flag set is parsed, so the file
// layer can sit below env and flags.
func configFromArgs(args []string) string {
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				return args[i+1]
			}
		} else if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	fs.String("host", c.Host, "Search page host (host:port); the client connects to ws(s)://<host>/ws")
	fs.Bool("secure", c.Secure, "Use wss:// and https:// links")
	fs.String("protocol", c.Protocol, "Wire protocol variant (legacy|extended)")
	fs.Int("top-n", c.TopN, "Default number of results")
	fs.String("filepath", c.Filepath, "Default file path filter")
	fs.StringP("question", "q", c.Question, "Run one query and exit")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("color", c.Color, "Colour output (auto|always|never)")
	fs.Duration("request-timeout", c.RequestTimeout, "Fail a pending query after this long (0 disables)")
	fs.Duration("handshake-timeout", c.HandshakeTimeout, "WebSocket handshake timeout")

	fs.Int("relay-port", c.Relay.Port, "Relay listen port")
	fs.String("relay-backend-url", c.Relay.BackendURL, "Backend WebSocket base URL")
	fs.String("relay-backend-http-url", c.Relay.BackendHTTPURL, "Backend HTTP base URL")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setDur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("host", &c.Host)
	setBool("secure", &c.Secure)
	setStr("protocol", &c.Protocol)
	setInt("top-n", &c.TopN)
	setStr("filepath", &c.Filepath)
	setStr("question", &c.Question)
	setStr("log-level", &c.LogLevel)
	setStr("color", &c.Color)
	setDur("request-timeout", &c.RequestTimeout)
	setDur("handshake-timeout", &c.HandshakeTimeout)

	setInt("relay-port", &c.Relay.Port)
	setStr("relay-backend-url", &c.Relay.BackendURL)
	setStr("relay-backend-http-url", &c.Relay.BackendHTTPURL)
}

func setDefaults(c *Specification) {
	c.Host = "localhost:8000"
	c.Secure = false
	c.Protocol = "extended"
	c.TopN = 5
	c.LogLevel = "info"
	c.Color = "auto"
	c.RequestTimeout = 0
	c.HandshakeTimeout = 10 * time.Second
	c.Relay.Port = 8000
	c.Relay.BackendURL = "ws://backend:8001"
	c.Relay.BackendHTTPURL = "http://backend:8001"
}
