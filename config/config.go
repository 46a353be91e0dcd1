package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment   string        `mapstructure:"environment"`
	ServerAddress string        `mapstructure:"server.address"`
	ServerTimeout time.Duration `mapstructure:"server.timeout"`
	LogLevel      string        `mapstructure:"logging.level"`
	DB            DatabaseConfig
	Redis         RedisConfig
	Azure         AzureConfig
	Elastic       ElasticConfig
	Tracing       TracingConfig
	Worker        WorkerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DSN             string        `mapstructure:"database.dsn"`
	MaxOpenConns    int           `mapstructure:"database.max_open_conns"`
	MaxIdleConns    int           `mapstructure:"database.max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"database.conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"redis.host"`
	Port     int    `mapstructure:"redis.port"`
	Password string `mapstructure:"redis.password"`
	DB       int    `mapstructure:"redis.db"`
	Enabled  bool   `mapstructure:"redis.enabled"`
}

// AzureConfig holds Azure Service Bus configuration for the ERP feed
type AzureConfig struct {
	QueueConnStr string `mapstructure:"azure.queue_conn_str"`
	QueueName    string `mapstructure:"azure.queue_name"`
}

// ElasticConfig holds Elasticsearch configuration
type ElasticConfig struct {
	URL      string `mapstructure:"elastic.url"`
	Username string `mapstructure:"elastic.username"`
	Password string `mapstructure:"elastic.password"`
	Prefix   string `mapstructure:"elastic.prefix"`
	Index    string `mapstructure:"elastic.index"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	LicenseKey     string `mapstructure:"tracing.license_key"`
	AppName        string `mapstructure:"tracing.app_name"`
	LogEnabled     bool   `mapstructure:"tracing.log_enabled"`
	DistribTracing bool   `mapstructure:"tracing.distributed_tracing_enabled"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"worker.reconcile_interval"`
	PublishInterval   time.Duration `mapstructure:"worker.publish_interval"`
	PublishBatchSize  int           `mapstructure:"worker.publish_batch_size"`
}

// FormatIndex prefixes an index name with the configured environment prefix
func FormatIndex(cfg ElasticConfig, index string) string {
	if cfg.Prefix == "" {
		return index
	}
	return fmt.Sprintf("%s-%s", cfg.Prefix, index)
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		// Continue with ENV vars and defaults when no file is present
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	// Nested sections are not picked up by Unmarshal with dotted
	// mapstructure keys, bind them explicitly
	cfg.Environment = v.GetString("environment")
	cfg.ServerAddress = v.GetString("server.address")
	cfg.ServerTimeout = v.GetDuration("server.timeout")
	cfg.LogLevel = v.GetString("logging.level")

	cfg.DB.DSN = v.GetString("database.dsn")
	cfg.DB.MaxOpenConns = v.GetInt("database.max_open_conns")
	cfg.DB.MaxIdleConns = v.GetInt("database.max_idle_conns")
	cfg.DB.ConnMaxLifetime = v.GetDuration("database.conn_max_lifetime")

	cfg.Redis.Host = v.GetString("redis.host")
	cfg.Redis.Port = v.GetInt("redis.port")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Redis.Enabled = v.GetBool("redis.enabled")

	cfg.Azure.QueueConnStr = v.GetString("azure.queue_conn_str")
	cfg.Azure.QueueName = v.GetString("azure.queue_name")

	cfg.Elastic.URL = v.GetString("elastic.url")
	cfg.Elastic.Username = v.GetString("elastic.username")
	cfg.Elastic.Password = v.GetString("elastic.password")
	cfg.Elastic.Prefix = v.GetString("elastic.prefix")
	cfg.Elastic.Index = v.GetString("elastic.index")

	cfg.Tracing.LicenseKey = v.GetString("tracing.license_key")
	cfg.Tracing.AppName = v.GetString("tracing.app_name")
	cfg.Tracing.LogEnabled = v.GetBool("tracing.log_enabled")
	cfg.Tracing.DistribTracing = v.GetBool("tracing.distributed_tracing_enabled")

	cfg.Worker.ReconcileInterval = v.GetDuration("worker.reconcile_interval")
	cfg.Worker.PublishInterval = v.GetDuration("worker.publish_interval")
	cfg.Worker.PublishBatchSize = v.GetInt("worker.publish_batch_size")

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("logging.level", "info")

	v.SetDefault("database.dsn", "host=localhost port=5432 user=ledger password=ledger dbname=ledger sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("elastic.index", "execution-events")

	v.SetDefault("tracing.app_name", "field-ledger")

	v.SetDefault("worker.reconcile_interval", time.Minute)
	v.SetDefault("worker.publish_interval", 30*time.Second)
	v.SetDefault("worker.publish_batch_size", 100)
}
