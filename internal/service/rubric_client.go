package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

const (
	rubricCacheKeyPrefix = "grader:rubric:"
	rubricMissingMarker  = "null"
)

// RubricProvider resolves the rubric for an assignment key. A nil rubric
// with a nil error means the bank has no rubric for that key.
type RubricProvider interface {
	Lookup(ctx context.Context, key string) (*models.Rubric, error)
}

// RubricClientConfig configures the rubric bank client.
type RubricClientConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

type rubricClient struct {
	cfg    RubricClientConfig
	http   *http.Client
	cache  *redis.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewRubricClient builds a rubric bank client. cache may be nil.
func NewRubricClient(cfg RubricClientConfig, httpClient *http.Client, cache *redis.Client, logger zerolog.Logger) RubricProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &rubricClient{
		cfg:    cfg,
		http:   httpClient,
		cache:  cache,
		tracer: otel.Tracer("github.com/noah-isme/dsa-autograder/internal/service/rubric"),
		logger: logger.With().Str("component", "rubric_client").Logger(),
	}
}

// RubricKey picks the lookup key: assignment code, else topic, else the file stem.
func RubricKey(assignmentCode, topic, filename string) string {
	if code := strings.TrimSpace(assignmentCode); code != "" {
		return code
	}
	if t := strings.TrimSpace(topic); t != "" {
		return t
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base)))
}

func (c *rubricClient) Lookup(parent context.Context, key string) (*models.Rubric, error) {
	key = strings.TrimSpace(strings.TrimSuffix(key, ".py"))
	if key == "" || c.cfg.BaseURL == "" {
		return nil, nil
	}

	ctx, span := c.tracer.Start(parent, "rubric.lookup", trace.WithAttributes(attribute.String("rubric.key", key)))
	defer span.End()

	cacheKey := rubricCacheKeyPrefix + strings.ToLower(key)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey).Result(); err == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			if cached == rubricMissingMarker {
				return nil, nil
			}
			var rubric models.Rubric
			if unmarshalErr := json.Unmarshal([]byte(cached), &rubric); unmarshalErr == nil {
				c.logger.Debug().Str("key", key).Msg("rubric cache hit")
				return &rubric, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("failed to read rubric cache")
		}
	}

	rubric, err := c.fetch(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.store(ctx, cacheKey, rubric)
	return rubric, nil
}

func (c *rubricClient) fetch(ctx context.Context, key string) (*models.Rubric, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build rubric request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rubric %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug().Str("key", key).Msg("rubric not published")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch rubric %s: unexpected status %d", key, resp.StatusCode)
	}

	var rubric models.Rubric
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rubric); err != nil {
		return nil, fmt.Errorf("decode rubric %s: %w", key, err)
	}
	if !rubric.IsUsable() {
		return nil, nil
	}
	if rubric.AssignmentCode == "" {
		rubric.AssignmentCode = key
	}

	return &rubric, nil
}

// store caches hits for the full TTL and misses for a fifth of it, so a
// newly published rubric is picked up quickly.
func (c *rubricClient) store(ctx context.Context, cacheKey string, rubric *models.Rubric) {
	if c.cache == nil {
		return
	}

	payload := []byte(rubricMissingMarker)
	ttl := c.cfg.CacheTTL / 5
	if rubric != nil {
		encoded, err := json.Marshal(rubric)
		if err != nil {
			return
		}
		payload = encoded
		ttl = c.cfg.CacheTTL
	}

	if err := c.cache.Set(ctx, cacheKey, payload, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store rubric cache")
	}
}
