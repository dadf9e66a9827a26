// Package settings provides typed, cached access to the settings table. Every
// writable key carries a JSON Schema; writes are validated against it and
// reads decode through mapstructure into caller-supplied structs.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Well-known settings keys.
const (
	KeyIssuer        = "issuer"
	KeyRPID          = "rp_id"
	KeyUISettings    = "ui"
	KeyOTPPolicy     = "otp.policy"
	KeyTokenLifetime = "tokens.lifetime"
	KeyInstall       = "install"
)

const cacheSize = 256

var (
	// ErrUnknownKey is returned on writes to keys with no registered schema.
	ErrUnknownKey = errors.New("unknown settings key")

	// ErrInvalidValue wraps schema validation failures.
	ErrInvalidValue = errors.New("invalid settings value")
)

// Schemas maps each writable key to its JSON Schema source. Keys absent from
// this registry are internal (written by the server itself, never through the
// admin API).
var schemas = map[string]string{
	KeyUISettings: `{
		"type": "object",
		"properties": {
			"product_name": {"type": "string", "minLength": 1},
			"support_url": {"type": "string"},
			"logo_url": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	KeyOTPPolicy: `{
		"type": "object",
		"properties": {
			"require_for_users": {"type": "boolean"},
			"require_for_admins": {"type": "boolean"}
		},
		"additionalProperties": false
	}`,
	KeyTokenLifetime: `{
		"type": "object",
		"properties": {
			"access_ttl_seconds": {"type": "integer", "minimum": 60, "maximum": 86400},
			"refresh_ttl_seconds": {"type": "integer", "minimum": 300, "maximum": 7776000}
		},
		"additionalProperties": false
	}`,
}

// OTPPolicy is the decoded form of the otp.policy key.
type OTPPolicy struct {
	RequireForUsers  bool `mapstructure:"require_for_users"`
	RequireForAdmins bool `mapstructure:"require_for_admins"`
}

// TokenLifetime is the decoded form of the tokens.lifetime key.
type TokenLifetime struct {
	AccessTTLSeconds  int `mapstructure:"access_ttl_seconds"`
	RefreshTTLSeconds int `mapstructure:"refresh_ttl_seconds"`
}

// Service is the settings access layer.
type Service struct {
	repo     repository.SettingsRepository
	cache    *lru.Cache[string, models.JSONMap]
	compiled map[string]*jsonschema.Schema
	mu       sync.Mutex
}

// NewService compiles the schema registry and builds the cache.
func NewService(repo repository.SettingsRepository) (*Service, error) {
	cache, err := lru.New[string, models.JSONMap](cacheSize)
	if err != nil {
		return nil, err
	}

	compiled := make(map[string]*jsonschema.Schema, len(schemas))
	for key, src := range schemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse schema for %s: %w", key, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(key+".json", doc); err != nil {
			return nil, fmt.Errorf("register schema for %s: %w", key, err)
		}
		schema, err := c.Compile(key + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", key, err)
		}
		compiled[key] = schema
	}

	return &Service{repo: repo, cache: cache, compiled: compiled}, nil
}

// Get returns the raw value for key, read through the cache. Missing keys
// return repository.ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) (models.JSONMap, error) {
	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, setting.Value)
	return setting.Value, nil
}

// GetInto decodes the value for key into out via mapstructure.
func (s *Service) GetInto(ctx context.Context, key string, out any) error {
	value, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := mapstructure.Decode(map[string]any(value), out); err != nil {
		return fmt.Errorf("decode setting %s: %w", key, err)
	}
	return nil
}

// Set validates value against the key's schema and persists it. The cache
// entry is invalidated on success. Keys without a registered schema are
// rejected; PutInternal bypasses the registry for server-owned keys.
func (s *Service) Set(ctx context.Context, key string, value models.JSONMap) error {
	schema, ok := s.compiled[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := schema.Validate(jsonValue(value)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return s.put(ctx, key, value)
}

// PutInternal writes a server-owned key without schema validation. Not
// reachable from the admin API.
func (s *Service) PutInternal(ctx context.Context, key string, value models.JSONMap) error {
	return s.put(ctx, key, value)
}

func (s *Service) put(ctx context.Context, key string, value models.JSONMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.repo.Put(ctx, &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	s.cache.Remove(key)
	return nil
}

// List returns all settings, uncached. Used by the admin surface.
func (s *Service) List(ctx context.Context) ([]models.Setting, error) {
	return s.repo.List(ctx)
}

// Editable reports whether key accepts admin writes.
func (s *Service) Editable(key string) bool {
	_, ok := s.compiled[key]
	return ok
}

// jsonValue converts a JSONMap to the generic form the validator expects:
// map[string]any with nested values as any.
func jsonValue(m models.JSONMap) any {
	return map[string]any(m)
}
