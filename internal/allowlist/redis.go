package allowlist

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "pixelproxy:allowed_domains"

// LoadRedisSet reads the members of a Redis set once. The result is merged
// into the startup allowlist; later changes to the set are not observed.
func LoadRedisSet(ctx context.Context, client redis.UniversalClient, key string) ([]string, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}

	members, err := client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read allowlist set %s: %w", key, err)
	}
	return members, nil
}
