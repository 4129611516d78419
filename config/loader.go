package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/poiesic/auditrag/ai"
)

const (
	// DefaultPath is the config file read when no path is given.
	DefaultPath = "auditrag.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AUDITRAG_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Variables honoured for compatibility with existing deployments.
const (
	legacyFolderEnv = "AUDIT_FOLDER"
	openAIKeyEnv    = "OPENAI_API_KEY"
)

// LoadEnvFile loads variables from a .env file without overriding variables
// that are already set. A missing file is not an error when path is empty,
// in which case ".env" is tried.
func LoadEnvFile(path string) error {
	optional := path == ""
	if optional {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. AUDITRAG_* environment variables
//  2. AUDIT_FOLDER and OPENAI_API_KEY
//  3. YAML config file
//  4. Hardcoded defaults
//
// If path is empty, DefaultPath is read when it exists. An explicit path
// must exist.
//
// # Environment Variable Mapping
//
// The prefix is removed and the first underscore separates section and field:
//
//	AUDITRAG_FOLDER -> folder
//	AUDITRAG_STORE_BACKEND -> store.backend
//	AUDITRAG_EMBEDDING_API_TOKEN -> embedding.api_token
//
// Routes can only be set in the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	content, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// No config file, environment and defaults only
	default:
		return nil, err
	}

	if v := os.Getenv(legacyFolderEnv); v != "" {
		if err := k.Set("folder", v); err != nil {
			return nil, err
		}
	}
	openAIKey := os.Getenv(openAIKeyEnv)
	useOpenAIKey := openAIKey != "" && k.String("embedding.api_token") == ""
	if useOpenAIKey {
		if err := k.Set("embedding.api_token", openAIKey); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// An OpenAI key with no configured host targets the hosted API.
	if useOpenAIKey && k.String("embedding.host") == "" {
		if err := k.Set("embedding.host", ai.OpenAIHost); err != nil {
			return nil, err
		}
		if k.String("embedding.model") == "" {
			if err := k.Set("embedding.model", ai.OpenAIEmbeddingModel); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps AUDITRAG_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
