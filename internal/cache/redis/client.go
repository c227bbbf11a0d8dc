package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
	"github.com/chrisx599/ChatEmail/pkg/utils"
)

const analysisKeyPrefix = "analysis:"

// Client is a shared memo of analysis results keyed by email content, so
// several processes do not pay for the same enrichment twice.
type Client struct {
	client redis.UniversalClient
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

// NewFromClient wraps an existing connection.
func NewFromClient(client redis.UniversalClient) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Scope names the model settings an analysis was produced with. Analyses
// from different scopes never share a key.
type Scope struct {
	Model    string
	Language string
}

// AnalysisKey derives the memo key from the fields the analysis depends on.
func AnalysisKey(scope Scope, subject, body, from string) string {
	return analysisKeyPrefix + utils.ContentHash(scope.Model, scope.Language, subject, body, from)
}

func (c *Client) SetAnalysis(ctx context.Context, key string, analysis *models.Analysis, ttl time.Duration) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set analysis cache: %w", err)
	}

	logger.Debug("Analysis cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// GetAnalysis returns found=false without error when the key is absent.
func (c *Client) GetAnalysis(ctx context.Context, key string) (*models.Analysis, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("redis_analysis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get analysis cache: %w", err)
	}

	var analysis models.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	metrics.CacheHits.WithLabelValues("redis_analysis").Inc()
	logger.Debug("Analysis cache hit", zap.String("key", key))
	return &analysis, true, nil
}

// InvalidateAnalyses deletes every memoized analysis.
func (c *Client) InvalidateAnalyses(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, analysisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Analysis cache invalidated", zap.Int("deleted", deleted))
	return deleted, nil
}
