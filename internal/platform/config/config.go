package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Backend string

const (
	BackendDynamoDB Backend = "dynamodb"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

type Config struct {
	Backend           Backend
	TableName         string
	Region            string
	DynamoDBEndpoint  string
	DatabaseURL       string
	AuthMode          string
	APIKey            string
	UserPoolID        string
	Port              string
	LogLevel          string
	AutoPromoteToLive bool
	XRayEnabled       bool
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	cfg := Config{
		Backend:          Backend(strings.ToLower(get("STORE_BACKEND"))),
		TableName:        get("TABLE_NAME"),
		Region:           get("AWS_REGION"),
		DynamoDBEndpoint: firstSet(get("DYNAMODB_ENDPOINT"), get("AWS_ENDPOINT_URL_DYNAMODB")),
		DatabaseURL:      get("DATABASE_URL"),
		AuthMode:         strings.ToLower(get("AUTH_MODE")),
		APIKey:           get("API_KEY"),
		UserPoolID:       get("COGNITO_USER_POOL_ID"),
		Port:             firstSet(get("PORT"), "8080"),
		LogLevel:         firstSet(get("LOG_LEVEL"), "info"),
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendDynamoDB
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = "none"
	}
	var err error
	if cfg.AutoPromoteToLive, err = parseBool(get("AUTO_PROMOTE_TO_LIVE")); err != nil {
		return Config{}, fmt.Errorf("AUTO_PROMOTE_TO_LIVE: %w", err)
	}
	if cfg.XRayEnabled, err = parseBool(get("XRAY_ENABLED")); err != nil {
		return Config{}, fmt.Errorf("XRAY_ENABLED: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendDynamoDB:
		if c.TableName == "" || c.Region == "" {
			return errors.New("TABLE_NAME and AWS_REGION are required for the dynamodb backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}
	switch c.AuthMode {
	case "none":
	case "api_key":
		if c.APIKey == "" {
			return errors.New("API_KEY is required for api_key auth mode")
		}
	case "cognito":
		if c.UserPoolID == "" || c.Region == "" {
			return errors.New("COGNITO_USER_POOL_ID and AWS_REGION are required for cognito auth mode")
		}
	default:
		return errors.New("invalid auth mode")
	}
	return nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
