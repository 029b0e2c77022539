package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ndenisov/accounts/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = "development"
	defaultFrontendURL  = "http://localhost:3000"
	defaultSMTPPort     = 587

	productionEnvironment = "production"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the accounts service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Distinct signing secrets for the two token classes
	// Both fatal at startup when absent
	AccessTokenSecret  string
	RefreshTokenSecret string

	// Environment; in 'production' cookies get the Secure flag
	Environment string

	// Base URL of the front end, embedded into password reset links
	FrontendURL string

	// Origins allowed to call the API from a browser, comma separated
	// Best effort: empty just disables cross-origin access
	AllowedOrigins []string

	// Outbound mail settings
	// Best effort: without a host the reset flow logs instead of sending
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
		FrontendURL: defaultFrontendURL,
		SMTPPort:    defaultSMTPPort,
	}
}

// Validate checks the settings that must stop the process when broken
func (c *Config) Validate() error {
	if c.AccessTokenSecret == "" {
		return errors.New("access token secret must be set (ACCESS_TOKEN_SECRET)")
	}
	if c.RefreshTokenSecret == "" {
		return errors.New("refresh token secret must be set (REFRESH_TOKEN_SECRET)")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.DatabaseDSN == "" {
		return errors.New("database DSN must be set (DATABASE_URI)")
	}
	return nil
}

func (c *Config) Production() bool {
	return c.Environment == productionEnvironment
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}
	setList := func(o *[]string) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			*o = parts
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"ACCESS_TOKEN_SECRET":  setString(&c.AccessTokenSecret),
		"REFRESH_TOKEN_SECRET": setString(&c.RefreshTokenSecret),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"FRONTEND_URL":         setString(&c.FrontendURL),
		"ALLOWED_ORIGINS":      setList(&c.AllowedOrigins),
		"EMAIL_HOST":           setString(&c.SMTPHost),
		"EMAIL_PORT":           setInt(&c.SMTPPort),
		"EMAIL_USER":           setString(&c.SMTPUsername),
		"EMAIL_PASS":           setString(&c.SMTPPassword),
		"EMAIL_FROM":           setString(&c.EmailFrom),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("accounts", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessTokenSecret, "access-secret", c.AccessTokenSecret, "Access token signing secret")
	fs.StringVar(&c.RefreshTokenSecret, "refresh-secret", c.RefreshTokenSecret, "Refresh token signing secret")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.FrontendURL, "frontend-url", c.FrontendURL, "Front end base URL for reset links")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("error while parsing flags. Err: %w", err)
	}
	return nil
}
