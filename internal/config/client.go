package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"waffle-chat/internal/models"
)

// ClientConfig is the terminal client's configuration.
type ClientConfig struct {
	Server struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"server"`
	Newsletter struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"newsletter"`
	User struct {
		Email     string `mapstructure:"email"`
		ID        string `mapstructure:"id"`
		FirstName string `mapstructure:"first_name"`
		AvatarURL string `mapstructure:"avatar_url"`
	} `mapstructure:"user"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CachePath    string        `mapstructure:"cache_path"`
	SharedSecret string        `mapstructure:"shared_secret"`
	YouTubeKey   string        `mapstructure:"youtube_api_key"`
	LogLevel     string        `mapstructure:"log_level"`
}

// ErrNoIdentity is returned when no user email is configured.
var ErrNoIdentity = errors.New("user.email is not configured")

// SetClientDefaults registers defaults on v.
func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8083")
	v.SetDefault("newsletter.url", "http://localhost:3000")
	v.SetDefault("newsletter.api_key", "wafflechat")
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("cache_path", "")
	v.SetDefault("shared_secret", "")
	v.SetDefault("log_level", "warn")
}

// LoadClient reads waffle.yaml from path (or the usual locations when empty)
// and WAFFLE_ prefixed environment variables into a ClientConfig. A missing
// config file is not an error.
func LoadClient(v *viper.Viper, path string) (*ClientConfig, error) {
	SetClientDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("waffle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "waffle"))
		}
	}

	v.SetEnvPrefix("WAFFLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.User.Email = models.NormalizeEmail(cfg.User.Email)
	return &cfg, nil
}

// Identity returns the signed-in user. The user id falls back to the email.
func (c *ClientConfig) Identity() (models.Identity, error) {
	if c.User.Email == "" {
		return models.Identity{}, ErrNoIdentity
	}
	id := c.User.ID
	if id == "" {
		id = c.User.Email
	}
	return models.Identity{
		UserID:    id,
		Email:     c.User.Email,
		FirstName: c.User.FirstName,
		AvatarURL: c.User.AvatarURL,
	}, nil
}
