package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Compiler backends
const (
	CompilerHTTP     = "http"
	CompilerPdflatex = "pdflatex"
)

// Edit backends
const (
	EditHTTP   = "http"
	EditGemini = "gemini"
)

// Config holds the server configuration. Values come from defaults, then the
// optional YAML file, then the environment (.env included).
type Config struct {
	ServerAddr string `yaml:"server_addr"`

	DatabaseURL    string `yaml:"database_url"`
	DBHost         string `yaml:"db_host"`
	DBPort         string `yaml:"db_port"`
	DBUser         string `yaml:"db_user"`
	DBPassword     string `yaml:"db_password"`
	DBName         string `yaml:"db_name"`
	DBSSLMode      string `yaml:"db_sslmode"`
	JournalEnabled bool   `yaml:"journal_enabled"`
	JournalQueue   int    `yaml:"journal_queue"`

	Compiler          string `yaml:"compiler"`
	CompileServiceURL string `yaml:"compile_service_url"`
	PdflatexPath      string `yaml:"pdflatex_path"`

	EditProvider   string `yaml:"edit_provider"`
	EditServiceURL string `yaml:"edit_service_url"`
	GoogleAPIKey   string `yaml:"google_api_key"`
	GeminiModel    string `yaml:"gemini_model"`

	DebounceMs       int    `yaml:"debounce_ms"`
	CompileTimeoutMs int    `yaml:"compile_timeout_ms"`
	EditTimeoutMs    int    `yaml:"edit_timeout_ms"`
	ExportDir        string `yaml:"export_dir"`
	MaxMessageBytes  int64  `yaml:"max_message_bytes"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ServerAddr:        ":8080",
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "postgres",
		DBName:            "resume_editor",
		DBSSLMode:         "disable",
		JournalQueue:      1024,
		Compiler:          CompilerHTTP,
		CompileServiceURL: "http://localhost:8000",
		PdflatexPath:      "pdflatex",
		EditProvider:      EditHTTP,
		EditServiceURL:    "http://localhost:8000",
		GeminiModel:       "gemini-2.5-flash",
		DebounceMs:        1000,
		CompileTimeoutMs:  30000,
		EditTimeoutMs:     90000,
		MaxMessageBytes:   1 << 20,
	}
}

// Load reads .env (if present), then the YAML file at path (if path is not
// empty), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		glog.Warningf("[config].env = %s", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				glog.Warningf("[config]%s=%q is not a number", key, v)
			}
		}
	}

	str("SERVER_ADDR", &c.ServerAddr)
	if port, ok := lookup("PORT"); ok && port != "" {
		c.ServerAddr = ":" + port
	}
	str("DATABASE_URL", &c.DatabaseURL)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	str("DB_SSLMODE", &c.DBSSLMode)
	if v, ok := lookup("JOURNAL_ENABLED"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.JournalEnabled = b
		}
	}
	num("JOURNAL_QUEUE", &c.JournalQueue)

	str("COMPILER", &c.Compiler)
	str("COMPILE_SERVICE_URL", &c.CompileServiceURL)
	str("PDFLATEX_PATH", &c.PdflatexPath)

	str("EDIT_PROVIDER", &c.EditProvider)
	str("EDIT_SERVICE_URL", &c.EditServiceURL)
	str("GOOGLE_API_KEY", &c.GoogleAPIKey)
	str("GEMINI_MODEL", &c.GeminiModel)

	num("DEBOUNCE_MS", &c.DebounceMs)
	num("COMPILE_TIMEOUT_MS", &c.CompileTimeoutMs)
	num("EDIT_TIMEOUT_MS", &c.EditTimeoutMs)
	str("EXPORT_DIR", &c.ExportDir)
	if v, ok := lookup("MAX_MESSAGE_BYTES"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMessageBytes = n
		}
	}
}

// Validate checks that the selected backends are usable
func (c *Config) Validate() error {
	switch c.Compiler {
	case CompilerHTTP:
		if c.CompileServiceURL == "" {
			return fmt.Errorf("compile_service_url is required for the http compiler")
		}
	case CompilerPdflatex:
	default:
		return fmt.Errorf("unsupported compiler %q (use http or pdflatex)", c.Compiler)
	}
	switch c.EditProvider {
	case EditHTTP:
		if c.EditServiceURL == "" {
			return fmt.Errorf("edit_service_url is required for the http edit provider")
		}
	case EditGemini:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("google_api_key is required for the gemini edit provider")
		}
	default:
		return fmt.Errorf("unsupported edit provider %q (use http or gemini)", c.EditProvider)
	}
	if c.DebounceMs <= 0 {
		return fmt.Errorf("debounce_ms must be > 0")
	}
	if c.CompileTimeoutMs <= 0 || c.EditTimeoutMs <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	return nil
}

// GetServerAddr returns the listen address
func (c *Config) GetServerAddr() string {
	return c.ServerAddr
}

// GetDatabaseConnectionString returns a lib/pq connection string
func (c *Config) GetDatabaseConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c *Config) CompileTimeout() time.Duration {
	return time.Duration(c.CompileTimeoutMs) * time.Millisecond
}

func (c *Config) EditTimeout() time.Duration {
	return time.Duration(c.EditTimeoutMs) * time.Millisecond
}
