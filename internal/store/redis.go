package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
)

const redisKeyPrefix = "cycore"

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Repository on Redis. Payloads live in a hash per
// user and creation order in a sorted set beside it.
type RedisStore struct {
	rdb   *goredis.Client
	codec codec
	log   *logger.Logger
}

// NewRedis connects and pings the server before returning.
func NewRedis(ctx context.Context, opts RedisOptions, c *Cipher, log *logger.Logger) (*RedisStore, error) {
	if c == nil {
		return nil, ErrInvalidKey
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if log == nil {
		log = logger.Nop()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, codec: codec{cipher: c}, log: log.With("component", "redis-store")}, nil
}

func conversationsKey(userID string) string {
	return redisKeyPrefix + ":convos:" + userID
}

func orderKey(userID string) string {
	return redisKeyPrefix + ":convos:" + userID + ":order"
}

func userKey(userID string) string {
	return redisKeyPrefix + ":user:" + userID
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) LoadConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	ids, err := s.rdb.ZRange(ctx, orderKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := s.rdb.HMGet(ctx, conversationsKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	out := make([]chat.Conversation, 0, len(ids))
	for i, id := range ids {
		raw, ok := payloads[i].(string)
		if !ok {
			s.log.Warn("conversation missing from hash", "user_id", userID, "conversation_id", id)
			continue
		}
		conv, err := s.codec.decode(id, []byte(raw))
		if err != nil {
			s.log.Warn("skipping unreadable conversation", "user_id", userID, "conversation_id", id, "error", err)
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *RedisStore) SaveConversations(ctx context.Context, userID string, convs []chat.Conversation) error {
	hashKey, zKey := conversationsKey(userID), orderKey(userID)

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, conv := range convs {
			if len(conv.History) == 0 {
				pipe.HDel(ctx, hashKey, conv.ID)
				pipe.ZRem(ctx, zKey, conv.ID)
				continue
			}
			payload, err := s.codec.encode(conv)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, hashKey, conv.ID, payload)
			pipe.ZAddNX(ctx, zKey, goredis.Z{Score: float64(conv.CreatedAt.UnixMilli()), Member: conv.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, conversationsKey(userID), conversationID)
		pipe.ZRem(ctx, orderKey(userID), conversationID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUser(ctx context.Context, userID string) (*User, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(userID)).Result()
	if errors.Is(err, goredis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastSeen, _ := strconv.ParseInt(fields["last_seen_at"], 10, 64)
	return &User{
		ID:          userID,
		DisplayName: fields["display_name"],
		CreatedAt:   time.Unix(created, 0).UTC(),
		LastSeenAt:  time.Unix(lastSeen, 0).UTC(),
	}, nil
}

func (s *RedisStore) UpsertUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = user.CreatedAt
	}

	key := userKey(user.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", user.CreatedAt.Unix())
		pipe.HSet(ctx, key, "display_name", user.DisplayName, "last_seen_at", user.LastSeenAt.Unix())
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
