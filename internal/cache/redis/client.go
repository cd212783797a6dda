package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbassist/backend/pkg/logger"
)

const (
	queryPrefix     = "kb:query:"
	embeddingPrefix = "kb:embedding:"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetQuery(ctx context.Context, queryHash string, response any, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, queryPrefix+queryHash, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set query cache: %w", err)
	}

	logger.Debug("Query cached", zap.String("query_hash", queryHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetQuery(ctx context.Context, queryHash string, response any) (bool, error) {
	data, err := c.client.Get(ctx, queryPrefix+queryHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get query cache: %w", err)
	}

	err = json.Unmarshal(data, response)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Debug("Query cache hit", zap.String("query_hash", queryHash))
	return true, nil
}

// InvalidateQueries drops every cached query response. Embeddings survive because
// they do not depend on the knowledge base contents.
func (c *Client) InvalidateQueries(ctx context.Context) error {
	const batch = 500

	var keys []string
	deleted := 0
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete cached responses: %w", err)
		}
		deleted += int(n)
		keys = keys[:0]
		return nil
	}

	iter := c.client.Scan(ctx, 0, queryPrefix+"*", batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("Query cache invalidated", zap.Int("keys", deleted))
	return nil
}

// SetEmbedding stores a vector without expiry; keys already include the model name.
func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	err := c.client.Set(ctx, embeddingPrefix+textHash, encodeVector(embedding), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	embedding, err := decodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return embedding, true, nil
}

// Vectors are stored as little-endian float32s, a quarter of their JSON size.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding cache entry: %d bytes", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
