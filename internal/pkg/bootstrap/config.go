// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的完整配置，从 YAML 文件加载，再由环境变量覆盖
type Config struct {
	App    AppConfig    `yaml:"app"`
	Log    LogConfig    `yaml:"log"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Reaper ReaperConfig `yaml:"reaper"`
	Alerts AlertsConfig `yaml:"alerts"`
	Infra  InfraConfig  `yaml:"infra"`
}

type AppConfig struct {
	Name              string `yaml:"name"`
	Port              int    `yaml:"port"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MySQLConfig struct {
	Driver          string        `yaml:"driver"` // mysql 或 sqlite
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LockWaitTimeout int           `yaml:"lock_wait_timeout"` // 秒，innodb_lock_wait_timeout
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addrs    []string      `yaml:"addrs"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	MovementTopic string   `yaml:"movement_topic"`
	AlertTopic    string   `yaml:"alert_topic"`
	CommandTopic  string   `yaml:"command_topic"`
	GroupID       string   `yaml:"group_id"`
}

type ReaperConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	BatchLimit   int           `yaml:"batch_limit"`
	ZKServers    []string      `yaml:"zk_servers"`
	LockResource string        `yaml:"lock_resource"`
}

type AlertsConfig struct {
	Expression string `yaml:"expression"`
}

type InfraConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

const DefaultAlertExpression = "available <= low_stock_threshold"

// DefaultConfig 返回所有字段的默认值
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:              "inventory-service",
			Port:              8082,
			DefaultTTLSeconds: 900,
			RetryAttempts:     3,
		},
		Log: LogConfig{Level: "info"},
		MySQL: MySQLConfig{
			Driver:          "mysql",
			DSN:             "root:root@tcp(localhost:3306)/inventory?charset=utf8mb4&parseTime=true&loc=UTC",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			LockWaitTimeout: 5,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addrs:    []string{"localhost:6379"},
			CacheTTL: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			MovementTopic: "inventory-movements",
			AlertTopic:    "inventory-low-stock",
			CommandTopic:  "inventory-commands",
			GroupID:       "inventory-service-group",
		},
		Reaper: ReaperConfig{
			Enabled:      true,
			Interval:     30 * time.Second,
			BatchLimit:   500,
			LockResource: "inventory-reaper",
		},
		Alerts: AlertsConfig{Expression: DefaultAlertExpression},
		Infra: InfraConfig{
			Nacos: NacosConfig{
				ServerAddrs: "localhost:8848",
				Group:       "DEFAULT_GROUP",
			},
		},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置，未加载时返回默认配置
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

// SetCurrentConfig 替换当前生效的配置
func SetCurrentConfig(c *Config) {
	current.Store(c)
}

// LoadConfig 读取 path 指向的 YAML 文件（为空时只用默认值），应用环境变量覆盖并校验。
// path 为空时会尝试 INVENTORY_CONFIG 环境变量。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("INVENTORY_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	SetCurrentConfig(cfg)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		c.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv("DB_DRIVER"); ok {
		c.MySQL.Driver = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		c.Redis.Addrs = splitList(v)
		c.Redis.Enabled = len(c.Redis.Addrs) > 0
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		c.Reaper.ZKServers = splitList(v)
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		c.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		c.Infra.Nacos.ServerAddrs = v
		c.Infra.Nacos.Enabled = v != ""
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		c.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		c.Infra.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PORT %q", v)
		}
		c.App.Port = port
	}
	return nil
}

// Validate 校验配置的取值范围
func (c *Config) Validate() error {
	switch {
	case c.App.Name == "":
		return errors.New("app.name must not be empty")
	case c.App.Port <= 0 || c.App.Port > 65535:
		return errors.Errorf("app.port out of range: %d", c.App.Port)
	case c.App.DefaultTTLSeconds <= 0:
		return errors.Errorf("app.default_ttl_seconds must be positive, got %d", c.App.DefaultTTLSeconds)
	case c.App.RetryAttempts < 1:
		return errors.Errorf("app.retry_attempts must be at least 1, got %d", c.App.RetryAttempts)
	case c.MySQL.Driver != "mysql" && c.MySQL.Driver != "sqlite":
		return errors.Errorf("mysql.driver must be mysql or sqlite, got %q", c.MySQL.Driver)
	case c.MySQL.Driver == "mysql" && c.MySQL.DSN == "":
		return errors.New("mysql.dsn must not be empty")
	case c.Reaper.Enabled && c.Reaper.Interval <= 0:
		return errors.Errorf("reaper.interval must be positive, got %s", c.Reaper.Interval)
	case c.Reaper.BatchLimit < 0:
		return errors.Errorf("reaper.batch_limit must not be negative, got %d", c.Reaper.BatchLimit)
	case c.Redis.Enabled && len(c.Redis.Addrs) == 0:
		return errors.New("redis.addrs required when redis is enabled")
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return errors.New("kafka.brokers required when kafka is enabled")
	}
	if strings.TrimSpace(c.Alerts.Expression) == "" {
		c.Alerts.Expression = DefaultAlertExpression
	}
	return nil
}

// DefaultTTL 以 time.Duration 返回默认预占有效期
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.App.DefaultTTLSeconds) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
