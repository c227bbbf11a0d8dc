package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	IMAP    IMAPConfig
	Batch   BatchConfig
	Export  ExportConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	AllowedOrigins       []string
	Development          bool
	MaxRequestsPerMinute int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type LLMConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	MaxTokens         int
	TimeoutSec        int
	OutputLanguage    string
	MaxBodyChars      int
	RequestsPerSecond float64
}

type IMAPConfig struct {
	Server             string
	Port               int
	Username           string
	Password           string
	Mailbox            string
	Criteria           string
	Limit              int
	Days               int
	MarkAsRead         bool
	MoveToFolder       string
	TLS                bool
	DialTimeoutSeconds int
}

type BatchConfig struct {
	MaxConcurrency int
	ItemTimeoutSec int
	MaxEmails      int
}

type ExportConfig struct {
	Dir            string
	FilenamePrefix string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// envAliases binds the unprefixed variable names used by existing .env files.
var envAliases = map[string]string{
	"llm.provider":       "AI_PROVIDER",
	"llm.apiKey":         "OPENAI_API_KEY",
	"llm.baseURL":        "OPENAI_BASE_URL",
	"llm.model":          "OPENAI_MODEL",
	"llm.temperature":    "AI_TEMPERATURE",
	"llm.maxTokens":      "AI_MAX_TOKENS",
	"llm.outputLanguage": "AI_OUTPUT_LANGUAGE",
	"imap.server":        "IMAP_SERVER",
	"imap.port":          "IMAP_PORT",
	"imap.username":      "EMAIL_ADDRESS",
	"imap.password":      "EMAIL_PASSWORD",
	"imap.mailbox":       "IMAP_MAILBOX",
	"imap.criteria":      "FETCH_CRITERIA",
	"imap.limit":         "FETCH_LIMIT",
	"imap.days":          "FETCH_DAYS",
	"imap.markAsRead":    "MARK_AS_READ",
	"imap.moveToFolder":  "MOVE_TO_FOLDER_ON_SUCCESS",
	"logging.level":      "LOG_LEVEL",
}

func Load() (*Config, error) {
	return LoadFrom(viper.New(), ".env")
}

// LoadFrom reads configuration into v. Missing dotenv and config files are not
// errors; values then come from the environment and defaults.
func LoadFrom(v *viper.Viper, dotenvFiles ...string) (*Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chatemail")

	v.SetEnvPrefix("CHATEMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envAliases {
		if err := v.BindEnv(key, "CHATEMAIL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.SQLite.Path == "" {
		return errors.New("sqlite.path must not be empty")
	}
	if c.Batch.MaxConcurrency < 0 {
		return fmt.Errorf("batch.maxConcurrency must be >= 0, got %d", c.Batch.MaxConcurrency)
	}
	switch strings.ToUpper(c.IMAP.Criteria) {
	case "UNSEEN", "ALL", "SEEN", "FLAGGED":
	default:
		return fmt.Errorf("imap.criteria %q is not supported", c.IMAP.Criteria)
	}
	return nil
}

func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Batch.ItemTimeoutSec) * time.Second
}

func (c *Config) ReportTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.development", false)
	v.SetDefault("server.maxRequestsPerMinute", 30)

	v.SetDefault("sqlite.path", "./data/chatemail.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 24)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.outputLanguage", "English")
	v.SetDefault("llm.maxBodyChars", 8000)
	v.SetDefault("llm.requestsPerSecond", 5)

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.criteria", "UNSEEN")
	v.SetDefault("imap.limit", 10)
	v.SetDefault("imap.days", 0)
	v.SetDefault("imap.markAsRead", true)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.dialTimeoutSeconds", 30)

	v.SetDefault("batch.maxConcurrency", 0)
	v.SetDefault("batch.itemTimeoutSec", 90)
	v.SetDefault("batch.maxEmails", 200)

	v.SetDefault("export.dir", "./exports")
	v.SetDefault("export.filenamePrefix", "email_report")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
