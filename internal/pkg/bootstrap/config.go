package bootstrap

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务共享的基础设施配置与业务策略参数。
// 优先从 CONFIG_FILE 指定的 yaml 文件加载，环境变量可以覆盖关键项。
type Config struct {
	Infra struct {
		MysqlDSN     string   `yaml:"mysql_dsn"`
		RedisAddr    string   `yaml:"redis_addr"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		ZkServers    []string `yaml:"zk_servers"`
		Jaeger       struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`

	Order struct {
		// PaymentWindow 是 PENDING_PAYMENT 状态的支付时限
		PaymentWindow Duration `yaml:"payment_window"`
		// RefundWindow 是 DELIVERED 之后允许申请退款的窗口
		RefundWindow Duration `yaml:"refund_window"`
		// MaxPaymentRetries 限制 PROCESSING_FAILED -> PENDING_PAYMENT 的重试次数
		MaxPaymentRetries int `yaml:"max_payment_retries"`
		// SweepInterval 是超时订单轮询周期
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"order"`
}

// Duration 让 yaml 配置可以直接写 "15m"、"168h" 这类人类可读的时长。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换回标准库的 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

var (
	currentConfig Config
	configOnce    sync.Once
)

// Init 加载配置。必须在读取 GetCurrentConfig 之前调用一次。
func Init() {
	configOnce.Do(func() {
		currentConfig = defaultConfig()

		if path := os.Getenv("CONFIG_FILE"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				panic("bootstrap: cannot read config file " + path + ": " + err.Error())
			}
			if err := yaml.Unmarshal(data, &currentConfig); err != nil {
				panic("bootstrap: cannot parse config file " + path + ": " + err.Error())
			}
		}

		applyEnvOverrides(&currentConfig)
	})
}

// GetCurrentConfig 返回进程级配置快照。
func GetCurrentConfig() Config {
	return currentConfig
}

func defaultConfig() Config {
	var c Config
	c.Infra.MysqlDSN = "root:root@tcp(localhost:3306)/atelier?parseTime=true"
	c.Infra.RedisAddr = "localhost:6379"
	c.Infra.KafkaBrokers = []string{"localhost:9092"}
	c.Infra.ZkServers = []string{"localhost:2181"}
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Order.PaymentWindow = Duration(15 * time.Minute)
	c.Order.RefundWindow = Duration(7 * 24 * time.Hour)
	c.Order.MaxPaymentRetries = 3
	c.Order.SweepInterval = Duration(30 * time.Second)
	return c
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.MysqlDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		c.Infra.ZkServers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("PAYMENT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Order.PaymentWindow = Duration(d)
		}
	}
	if v := os.Getenv("REFUND_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Order.RefundWindow = Duration(d)
		}
	}
}
