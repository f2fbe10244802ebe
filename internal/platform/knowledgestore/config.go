package knowledgestore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/utils"
)

type Config struct {
	URL             string
	Collection      string
	NamespacePrefix string
	// MaxDocumentBytes and MaxMetadataValueBytes are the store's hard
	// size properties; the chunking codec is configured from them.
	MaxDocumentBytes      int
	MaxMetadataValueBytes int
	RequestTimeout        time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidDocBytes   ConfigErrorCode = "invalid_document_bytes"
	ConfigErrorInvalidMetaBytes  ConfigErrorCode = "invalid_metadata_value_bytes"
	ConfigErrorInvalidTimeout    ConfigErrorCode = "invalid_timeout"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid knowledge store config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "KNOWLEDGE_STORE_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid KNOWLEDGE_STORE_URL=%q; expected absolute URL like http://knowledgestore:7700",
			e.Value,
		)
	case ConfigErrorMissingCollection:
		return "KNOWLEDGE_STORE_COLLECTION is required"
	case ConfigErrorInvalidDocBytes:
		return fmt.Sprintf(
			"invalid KNOWLEDGE_STORE_MAX_DOC_BYTES=%q; expected positive integer",
			e.Value,
		)
	case ConfigErrorInvalidMetaBytes:
		return fmt.Sprintf(
			"invalid KNOWLEDGE_STORE_MAX_META_BYTES=%q; expected positive integer",
			e.Value,
		)
	case ConfigErrorInvalidTimeout:
		return fmt.Sprintf(
			"invalid KNOWLEDGE_STORE_TIMEOUT=%q; expected positive duration",
			e.Value,
		)
	default:
		return "invalid knowledge store config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv(log *logger.Logger) (Config, error) {
	cfg := Config{
		URL:                   strings.TrimSpace(utils.GetEnv("KNOWLEDGE_STORE_URL", "", log)),
		Collection:            strings.TrimSpace(utils.GetEnv("KNOWLEDGE_STORE_COLLECTION", "", log)),
		NamespacePrefix:       strings.TrimSpace(utils.GetEnv("KNOWLEDGE_STORE_NAMESPACE_PREFIX", "cd", log)),
		MaxDocumentBytes:      utils.GetEnvAsInt("KNOWLEDGE_STORE_MAX_DOC_BYTES", 8192, log),
		MaxMetadataValueBytes: utils.GetEnvAsInt("KNOWLEDGE_STORE_MAX_META_BYTES", 1024, log),
		RequestTimeout:        utils.GetEnvAsDuration("KNOWLEDGE_STORE_TIMEOUT", 10*time.Second, log),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.MaxDocumentBytes <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidDocBytes,
			Value: strconv.Itoa(cfg.MaxDocumentBytes),
		}
	}
	if cfg.MaxMetadataValueBytes <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidMetaBytes,
			Value: strconv.Itoa(cfg.MaxMetadataValueBytes),
		}
	}
	if cfg.RequestTimeout <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidTimeout,
			Value: cfg.RequestTimeout.String(),
		}
	}
	return nil
}
