package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis key suffixes, appended to the store prefix.
const (
	redisUsersKey       = "users"     // hash connID -> display name
	redisGroupsKey      = "groups"    // hash groupID -> JSON group
	redisAuthorsKey     = "authors"   // hash messageID -> JSON authorship
	redisAuthoredPrefix = "authored:" // set of messageIDs per connID
)

// RedisStore keeps the membership table in Redis hashes so it can be
// inspected or shared outside the process.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore whose keys all start with prefix.
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(suffix string) string {
	return s.prefix + suffix
}

func (s *RedisStore) SetName(ctx context.Context, connID, name string) error {
	if err := s.rdb.HSet(ctx, s.key(redisUsersKey), connID, name).Err(); err != nil {
		return fmt.Errorf("failed to set name: %w", err)
	}
	return nil
}

func (s *RedisStore) Name(ctx context.Context, connID string) (string, error) {
	name, err := s.rdb.HGet(ctx, s.key(redisUsersKey), connID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get name: %w", err)
	}
	return name, nil
}

func (s *RedisStore) RemoveName(ctx context.Context, connID string) error {
	if err := s.rdb.HDel(ctx, s.key(redisUsersKey), connID).Err(); err != nil {
		return fmt.Errorf("failed to remove name: %w", err)
	}
	return nil
}

func (s *RedisStore) Names(ctx context.Context) (map[string]string, error) {
	names, err := s.rdb.HGetAll(ctx, s.key(redisUsersKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	return names, nil
}

func (s *RedisStore) SaveGroup(ctx context.Context, g *Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key(redisGroupsKey), g.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *RedisStore) Group(ctx context.Context, id string) (*Group, error) {
	data, err := s.rdb.HGet(ctx, s.key(redisGroupsKey), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return decodeGroup(data)
}

func (s *RedisStore) DeleteGroup(ctx context.Context, id string) error {
	if err := s.rdb.HDel(ctx, s.key(redisGroupsKey), id).Err(); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

// Groups returns every group ordered by identifier.
func (s *RedisStore) Groups(ctx context.Context) ([]*Group, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key(redisGroupsKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	out := make([]*Group, 0, len(raw))
	for _, data := range raw {
		g, err := decodeGroup([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *Group) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func decodeGroup(data []byte) (*Group, error) {
	var g Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}
	if g.Members == nil {
		g.Members = []string{}
	}
	return &g, nil
}

func (s *RedisStore) ClaimMessage(ctx context.Context, messageID string, a Authorship) (bool, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to marshal authorship: %w", err)
	}
	set, err := s.rdb.HSetNX(ctx, s.key(redisAuthorsKey), messageID, data).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message: %w", err)
	}
	if !set {
		existing, err := s.MessageAuthor(ctx, messageID)
		if err != nil {
			return false, err
		}
		return existing == a && !a.Retired(), nil
	}
	if err := s.rdb.SAdd(ctx, s.key(redisAuthoredPrefix+a.ConnID), messageID).Err(); err != nil {
		return false, fmt.Errorf("failed to index message: %w", err)
	}
	return true, nil
}

func (s *RedisStore) MessageAuthor(ctx context.Context, messageID string) (Authorship, error) {
	data, err := s.rdb.HGet(ctx, s.key(redisAuthorsKey), messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Authorship{}, ErrMessageNotFound
	}
	if err != nil {
		return Authorship{}, fmt.Errorf("failed to get message author: %w", err)
	}
	var a Authorship
	if err := json.Unmarshal(data, &a); err != nil {
		return Authorship{}, fmt.Errorf("failed to unmarshal authorship: %w", err)
	}
	return a, nil
}

func (s *RedisStore) RetireAuthor(ctx context.Context, connID string) error {
	setKey := s.key(redisAuthoredPrefix + connID)
	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list authored messages: %w", err)
	}

	retired := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		a, err := s.MessageAuthor(ctx, id)
		if errors.Is(err, ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		a.ConnID = ""
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal authorship: %w", err)
		}
		retired = append(retired, id, data)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(retired) > 0 {
			pipe.HSet(ctx, s.key(redisAuthorsKey), retired...)
		}
		pipe.Del(ctx, setKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retire authored messages: %w", err)
	}
	return nil
}

// Reset deletes every key under the store prefix. Connections do not
// survive a restart, so state left by a previous process is stale.
func (s *RedisStore) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
