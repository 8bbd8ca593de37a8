package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"dictsync/internal/components/telemetry"
	"dictsync/internal/session"
	"dictsync/lib/configutil"
	"dictsync/lib/restyutil"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultPath is where the configuration is read from when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dict-config.yml"
	}
	return filepath.Join(home, "dict-config.yml")
}

// Config is the whole configuration file, a service that is not configured stays nil.
type Config struct {
	Youdao    *Service         `yaml:"youdao" json:"youdao"`
	Maimemo   *Service         `yaml:"maimemo" json:"maimemo"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

func (c *Config) Validate() error {
	if c.Youdao == nil && c.Maimemo == nil {
		return errors.New("no service is configured")
	}
	if c.Youdao != nil {
		err := c.Youdao.Validate()
		if err != nil {
			return fmt.Errorf("youdao: %w", err)
		}
	}
	if c.Maimemo != nil {
		err := c.Maimemo.Validate()
		if err != nil {
			return fmt.Errorf("maimemo: %w", err)
		}
	}
	return nil
}

// Service configures one authenticated client.
type Service struct {
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
	CookiePath     string `yaml:"cookie_path" json:"cookie_path"`
	DictionaryPath string `yaml:"dictionary_path" json:"dictionary_path"`
	CaptchaPath    string `yaml:"captcha_path" json:"captcha_path"`
	// Timeout is a duration string, ex. "30s". Empty means session.DefaultTimeout.
	Timeout          string            `yaml:"timeout" json:"timeout"`
	RateLimit        float64           `yaml:"rate_limit" json:"rate_limit"`
	CloudflareBypass bool              `yaml:"cloudflare_bypass" json:"cloudflare_bypass"`
	Requests         session.Templates `yaml:"requests" json:"requests"`
}

func (s *Service) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Username, validation.Required),
		validation.Field(&s.Password, validation.Required),
		validation.Field(&s.DictionaryPath, validation.Required),
		validation.Field(&s.Timeout, validation.By(isDuration)),
		validation.Field(&s.RateLimit, validation.Min(0.0)),
		validation.Field(&s.Requests, validation.Required),
	)
	if err != nil {
		return err
	}
	for name, tmpl := range s.Requests {
		err := validation.ValidateStruct(&tmpl,
			validation.Field(&tmpl.Url, validation.Required, validation.By(isAbsoluteUrl)),
			validation.Field(&tmpl.Method, validation.Required),
		)
		if err != nil {
			return fmt.Errorf("request %s: %w", name, err)
		}
	}
	return nil
}

func isDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration like 30s")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func isAbsoluteUrl(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute url")
	}
	return nil
}

// TimeoutDuration returns the configured timeout, it assumes Validate passed.
func (s *Service) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return session.DefaultTimeout
	}
	return d
}

// SessionOptions builds the options of the service's session, output may be nil.
func (s *Service) SessionOptions(output restyutil.InstrumentOutput) session.Options {
	cookiePath := ""
	if s.CookiePath != "" {
		cookiePath = configutil.ExpandHome(s.CookiePath)
	}
	return session.Options{
		Templates:  s.Requests,
		CookiePath: cookiePath,
		Transport: session.TransportOptions{
			Timeout:          s.TimeoutDuration(),
			RateLimit:        s.RateLimit,
			CloudflareBypass: s.CloudflareBypass,
			Output:           output,
		},
	}
}

// RecordsPath is the expanded snapshot path.
func (s *Service) RecordsPath() string {
	return configutil.ExpandHome(s.DictionaryPath)
}

// CaptchaFile is the expanded captcha image path, empty when not configured.
func (s *Service) CaptchaFile() string {
	if s.CaptchaPath == "" {
		return ""
	}
	return configutil.ExpandHome(s.CaptchaPath)
}

// Load reads the configuration at path together with its .local override.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, err
}
