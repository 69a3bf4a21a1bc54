package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/principal"
)

// ErrPrincipalNotFound indicates no principal is mapped to the token.
var ErrPrincipalNotFound = errors.New("principal not found")

// Tokens are never stored; the key carries the SHA-256 of the token and the
// hash holds the principal it acts as.
//
//	fw:auth:bearer:<sha256hex> -> HASH{id, role, created_at}
const bearerKeyPrefix = keyPrefix + "auth:bearer:"

func bearerKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return bearerKeyPrefix + hex.EncodeToString(sum[:])
}

// PrincipalRepository maps bearer tokens of machine clients (dashboards,
// video walls) to the principal they act as.
type PrincipalRepository struct {
	log    *zap.Logger
	client *RedisClient
	now    func() time.Time
}

func newPrincipalRepository(log *zap.Logger, client *RedisClient) *PrincipalRepository {
	return &PrincipalRepository{
		log:    log.Named("principals"),
		client: client,
		now:    time.Now,
	}
}

// Upsert maps token to p, replacing any previous mapping.
func (r *PrincipalRepository) Upsert(ctx context.Context, token string, p *principal.Principal) error {
	if token == "" {
		return errors.New("empty token")
	}
	if p == nil || p.ID == "" {
		return errors.New("invalid principal")
	}
	key := bearerKey(token)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"id", p.ID,
			"role", p.Role.String(),
			"created_at", strconv.FormatInt(r.now().Unix(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

// GetByToken returns the principal token acts as.
func (r *PrincipalRepository) GetByToken(ctx context.Context, token string) (*principal.Principal, error) {
	if token == "" {
		return nil, ErrPrincipalNotFound
	}
	fields, err := r.client.HGetAll(ctx, bearerKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrPrincipalNotFound
	}
	role, err := principal.ParseRole(fields["role"])
	if err != nil {
		// A corrupt record must not grant anything.
		r.log.Warn("bearer token with invalid role", zap.String("id", fields["id"]), zap.Error(err))
		return nil, ErrPrincipalNotFound
	}
	return &principal.Principal{ID: fields["id"], Role: role}, nil
}

// Delete revokes one token (idempotent).
func (r *PrincipalRepository) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, bearerKey(token)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// DeleteAll revokes every bearer token (idempotent).
func (r *PrincipalRepository) DeleteAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, bearerKeyPrefix+"*", 1024).Result()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
