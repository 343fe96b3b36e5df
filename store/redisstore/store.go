// Package redisstore keeps accounts as JSON documents in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or protocol failure.
var ErrRedisUnavailable = errors.New("account redis unavailable")

const (
	defaultPrefix     = "gid"
	defaultMaxRetries = 8
)

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

var tokenKinds = [...]account.TokenKind{account.TokenEmailVerification, account.TokenPasswordReset}

// Store implements account.Store on a redis.UniversalClient.
//
// Layout:
//
//	<prefix>:acct:<id>            JSON account document
//	<prefix>:email:<email>        id owning the normalized email
//	<prefix>:tok:<kind>:<digest>  id holding the single-use token
//
// Writes WATCH the document and any email key they claim, then commit in
// one MULTI/EXEC. A lost race is retried a bounded number of times.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
}

// New returns a Store. An empty prefix selects "gid".
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		redis:      redisClient,
		prefix:     prefix,
		maxRetries: defaultMaxRetries,
	}
}

func (s *Store) accountKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) tokenKey(kind account.TokenKind, hash string) string {
	return s.prefix + ":tok:" + string(kind) + ":" + hash
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	a, err := s.load(ctx, s.redis, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if a == nil {
		return nil, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(account.NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// FindByToken resolves the token index and confirms the document still
// holds that digest.
func (s *Store) FindByToken(ctx context.Context, kind account.TokenKind, hash string) (*account.Account, error) {
	if hash == "" || !kind.Valid() {
		return nil, account.ErrNotFound
	}
	id, err := s.redis.Get(ctx, s.tokenKey(kind, hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Token(kind).Matches(hash) {
		return nil, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	want := a.Clone()
	_, err := s.write(ctx, want.ID, func(cur *account.Account) (*account.Account, error) {
		if cur != nil {
			return nil, account.ErrDuplicateEmail
		}
		return want.Clone(), nil
	})
	return err
}

func (s *Store) Save(ctx context.Context, a *account.Account) error {
	want := a.Clone()
	_, err := s.write(ctx, want.ID, func(*account.Account) (*account.Account, error) {
		return want.Clone(), nil
	})
	return err
}

func (s *Store) Update(ctx context.Context, id string, mutate func(*account.Account) error) (*account.Account, error) {
	return s.write(ctx, id, func(cur *account.Account) (*account.Account, error) {
		if cur == nil {
			return nil, account.ErrNotFound
		}
		if err := mutate(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
}

// write runs build against the current document inside a WATCH and commits
// the result. Errors returned by build are passed through unchanged.
func (s *Store) write(ctx context.Context, id string, build func(cur *account.Account) (*account.Account, error)) (*account.Account, error) {
	key := s.accountKey(id)

	for i := 0; i < s.maxRetries; i++ {
		var (
			written  *account.Account
			buildErr error
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			var prev *account.Account
			if cur != nil {
				prev = cur.Clone()
			}

			next, err := build(cur)
			if err != nil {
				buildErr = err
				return err
			}
			next.ID = id
			next.Email = account.NormalizeEmail(next.Email)

			claimEmail := prev == nil || prev.Email != next.Email
			if claimEmail {
				emailKey := s.emailKey(next.Email)
				if err := tx.Watch(ctx, emailKey).Err(); err != nil {
					return err
				}
				owner, err := tx.Get(ctx, emailKey).Result()
				switch {
				case err == nil && owner != id:
					buildErr = account.ErrDuplicateEmail
					return buildErr
				case err != nil && !errors.Is(err, redis.Nil):
					return err
				}
			}

			data, err := json.Marshal(next)
			if err != nil {
				buildErr = err
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if claimEmail {
					pipe.Set(ctx, s.emailKey(next.Email), id, 0)
					if prev != nil {
						pipe.Del(ctx, s.emailKey(prev.Email))
					}
				}
				for _, kind := range tokenKinds {
					s.syncTokenIndex(ctx, pipe, id, kind, prev, next)
				}
				return nil
			})
			if err != nil {
				return err
			}

			written = next
			return nil
		}, key)

		if buildErr != nil {
			return nil, buildErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return written.Clone(), nil
	}

	return nil, account.ErrContention
}

func (s *Store) syncTokenIndex(ctx context.Context, pipe redis.Pipeliner, id string, kind account.TokenKind, prev, next *account.Account) {
	var oldHash, newHash string
	if prev != nil {
		if tok := prev.Token(kind); tok != nil {
			oldHash = tok.Hash
		}
	}
	if tok := next.Token(kind); tok != nil {
		newHash = tok.Hash
	}
	if oldHash == newHash {
		return
	}
	if oldHash != "" {
		pipe.Del(ctx, s.tokenKey(kind, oldHash))
	}
	if newHash != "" {
		pipe.Set(ctx, s.tokenKey(kind, newHash), id, 0)
	}
}

func (s *Store) load(ctx context.Context, c getter, id string) (*account.Account, error) {
	data, err := c.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var a account.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", id, err)
	}
	return &a, nil
}
