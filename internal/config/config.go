package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name            string `yaml:"name"`
		Env             string `yaml:"env"`
		Debug           bool   `yaml:"debug"`
		FrontendBaseURL string `yaml:"frontend_base_url"`
	} `yaml:"app"`
	Server struct {
		Port            string `yaml:"port"`
		DisableReqLogs  bool   `yaml:"disable_request_logs"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL           string `yaml:"ttl"`
		SelectionSize int    `yaml:"selection_size"`
		Secret        string `yaml:"secret"`
		Grace         string `yaml:"grace"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		AccessTTL       string `yaml:"access_ttl"`
		RefreshTTL      string `yaml:"refresh_ttl"`
		BcryptCost      int    `yaml:"bcrypt_cost"`
		VerificationTTL string `yaml:"verification_ttl"`
		ResetTTL        string `yaml:"reset_ttl"`
	} `yaml:"auth"`
	Mail struct {
		SendgridKey string `yaml:"sendgrid_key"`
		FromName    string `yaml:"from_name"`
		FromEmail   string `yaml:"from_email"`
	} `yaml:"mail"`
	Payments struct {
		MidtransServerKey string `yaml:"midtrans_server_key"`
		Production        bool   `yaml:"production"`
		Currency          string `yaml:"currency"`
		TaxRate           string `yaml:"tax_rate"`
	} `yaml:"payments"`
	Certificates struct {
		CloudinaryURL string `yaml:"cloudinary_url"`
		Folder        string `yaml:"folder"`
		VerifyBaseURL string `yaml:"verify_base_url"`
		RenderTimeout string `yaml:"render_timeout"`
	} `yaml:"certificates"`
	Rollbar struct {
		Token string `yaml:"token"`
	} `yaml:"rollbar"`
	Jobs struct {
		Workers            int    `yaml:"workers"`
		LeaderboardRefresh string `yaml:"leaderboard_refresh"`
		ProctoringCleanup  string `yaml:"proctoring_cleanup"`
		StaleSessionAge    string `yaml:"stale_session_age"`
	} `yaml:"jobs"`
}

// Load reads YAML config from path. A .env file next to the working directory is
// loaded first and ${VAR} references in the file are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// loadDotEnv loads path if it exists. Variables already set in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "Quiz Platform"
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Quiz.SelectionSize <= 0 {
		c.Quiz.SelectionSize = 5
	}
	if c.Mail.FromEmail == "" {
		c.Mail.FromEmail = "noreply@localhost"
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = c.App.Name
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "IDR"
	}
	if c.Certificates.Folder == "" {
		c.Certificates.Folder = "certificates"
	}
	if c.Certificates.VerifyBaseURL == "" && c.App.FrontendBaseURL != "" {
		c.Certificates.VerifyBaseURL = c.App.FrontendBaseURL + "/certificates/verify"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.LeaderboardRefresh == "" {
		c.Jobs.LeaderboardRefresh = "@every 10m"
	}
	if c.Jobs.ProctoringCleanup == "" {
		c.Jobs.ProctoringCleanup = "@hourly"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
