package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "PSHUT"

	// placeholderSigningKey is the value older sample configs shipped with.
	placeholderSigningKey = "change-me"
)

// Config is the whole runtime configuration. It is read once at startup and never mutated.
type Config struct {
	Printer PrinterConfig `mapstructure:"printer"`
	Power   PowerConfig   `mapstructure:"power"`
	Watch   WatchConfig   `mapstructure:"watch"`
	GPIO    GPIOConfig    `mapstructure:"gpio"`
	Network NetworkConfig `mapstructure:"network"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

type PrinterConfig struct {
	Host       string `mapstructure:"host"`
	StatusPath string `mapstructure:"status_path"`
}

type PowerConfig struct {
	OffURL string `mapstructure:"off_url"`
}

type WatchConfig struct {
	CheckPeriod time.Duration `mapstructure:"check_period"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Debounce    time.Duration `mapstructure:"debounce"`
	Tick        time.Duration `mapstructure:"tick"`
}

type GPIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Chip            string `mapstructure:"chip"`
	ButtonPin       int    `mapstructure:"button_pin"`
	ButtonActiveLow bool   `mapstructure:"button_active_low"`
	ArmedLEDPin     int    `mapstructure:"armed_led_pin"`
	StatusLEDPin    int    `mapstructure:"status_led_pin"`
}

type NetworkConfig struct {
	Interface    string        `mapstructure:"interface"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BlinkPeriod  time.Duration `mapstructure:"blink_period"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	SigningKey    string        `mapstructure:"signing_key"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
	AllowSignUp   bool          `mapstructure:"allow_sign_up"`
}

type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	PublishRate time.Duration `mapstructure:"publish_rate"`
}

// StatusURL is the printer status endpoint, e.g. http://192.168.100.4/rr_status?type=3.
func (c Config) StatusURL() string {
	host := strings.TrimSuffix(c.Printer.Host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	path := c.Printer.StatusPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host + path
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("printer.host", "192.168.100.4")
	v.SetDefault("printer.status_path", "/rr_status?type=3")
	v.SetDefault("power.off_url", "http://tasmota-printe/cm?cmnd=Power%20off")

	v.SetDefault("watch.check_period", 5*time.Second)
	v.SetDefault("watch.poll_timeout", 5*time.Second)
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("watch.tick", 10*time.Millisecond)

	v.SetDefault("gpio.enabled", false)
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.button_pin", 39)
	v.SetDefault("gpio.button_active_low", true)
	v.SetDefault("gpio.armed_led_pin", 40)
	v.SetDefault("gpio.status_led_pin", 2)

	v.SetDefault("network.interface", "")
	v.SetDefault("network.poll_interval", 2*time.Second)
	v.SetDefault("network.blink_period", 500*time.Millisecond)

	v.SetDefault("http.port", "8080")
	v.SetDefault("db.path", "printer_shutdown.db")
	v.SetDefault("log.level", "info")

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.admin_user", "")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.allow_sign_up", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "printer-shutdown")
	v.SetDefault("mqtt.topic_prefix", "printer-shutdown")
	v.SetDefault("mqtt.publish_rate", time.Second)
}

// Load reads configs/config.yml (or the file at path when non-empty), applies
// defaults and PSHUT_* environment overrides, then validates the result.
// A missing config file is not an error; the defaults target the stock printer and plug.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration correctness. It does not mutate cfg.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Printer.Host) == "" {
		return errors.New("printer.host is required")
	}
	if _, err := url.ParseRequestURI(c.StatusURL()); err != nil {
		return fmt.Errorf("printer status url %q: %w", c.StatusURL(), err)
	}
	if _, err := url.ParseRequestURI(c.Power.OffURL); err != nil {
		return fmt.Errorf("power.off_url %q: %w", c.Power.OffURL, err)
	}
	if c.Watch.CheckPeriod <= 0 {
		return errors.New("watch.check_period must be > 0")
	}
	if c.Watch.PollTimeout <= 0 {
		return errors.New("watch.poll_timeout must be > 0")
	}
	if c.Watch.Debounce < 0 {
		return errors.New("watch.debounce must be >= 0")
	}
	if c.Watch.Tick <= 0 {
		return errors.New("watch.tick must be > 0")
	}
	if c.GPIO.Enabled {
		if c.GPIO.Chip == "" {
			return errors.New("gpio.chip is required when gpio is enabled")
		}
		pins := map[int]string{}
		for name, pin := range map[string]int{
			"button_pin":     c.GPIO.ButtonPin,
			"armed_led_pin":  c.GPIO.ArmedLEDPin,
			"status_led_pin": c.GPIO.StatusLEDPin,
		} {
			if pin < 0 {
				return fmt.Errorf("gpio.%s must be >= 0", name)
			}
			if prev, dup := pins[pin]; dup {
				return fmt.Errorf("gpio.%s and gpio.%s share line %d", prev, name, pin)
			}
			pins[pin] = name
		}
	}
	if c.Network.PollInterval <= 0 {
		return errors.New("network.poll_interval must be > 0")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if strings.Trim(c.MQTT.TopicPrefix, "/") == "" {
			return errors.New("mqtt.topic_prefix is required when mqtt is enabled")
		}
	}
	if (c.Auth.AdminUser == "") != (c.Auth.AdminPassword == "") {
		return errors.New("auth.admin_user and auth.admin_password must be set together")
	}
	key := strings.TrimSpace(c.Auth.SigningKey)
	if key == placeholderSigningKey {
		return errors.New("auth.signing_key still holds the sample value; set a secret or leave it empty")
	}
	if key == "" && (c.Auth.AdminUser != "" || c.Auth.AllowSignUp) {
		return errors.New("auth.signing_key is required when operators can sign in")
	}
	return nil
}
