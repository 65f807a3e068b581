package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"memberdir/internal/cache"
	"memberdir/internal/observability"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ErrCodeRejected means the code did not match, was already used, expired,
// or ran out of attempts. Callers do not get to tell these apart.
var ErrCodeRejected = errors.New("code rejected")

// PendingCode is what a successful verification hands back.
type PendingCode struct {
	RememberMe bool
}

// OTPStore keeps bcrypt hashes of outstanding sign-in codes in Redis.
type OTPStore struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxAttempts int
}

// NewOTPStore creates a store whose codes live for ttl and allow maxAttempts
// wrong guesses.
func NewOTPStore(rdb *redis.Client, ttl time.Duration, maxAttempts int) *OTPStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OTPStore{rdb: rdb, ttl: ttl, maxAttempts: maxAttempts}
}

// GenerateCode returns a uniformly random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Save replaces any outstanding code for email.
func (s *OTPStore) Save(ctx context.Context, email, code string, rememberMe bool) error {
	if s.rdb == nil {
		return errors.New("otp store requires redis")
	}
	ctx, span := observability.TraceRedisOperation(ctx, "otp_save")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	key := cache.OTPKey(email)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "hash", string(hash), "remember", strconv.FormatBool(rememberMe))
	pipe.Expire(ctx, key, s.ttl)
	pipe.Del(ctx, cache.OTPAttemptsKey(email))
	_, err = pipe.Exec(ctx)
	return err
}

// Verify checks code against the stored hash. Each call reserves one slot of
// the attempt budget before comparing, so concurrent guesses cannot overrun
// it. A match consumes the code; the code is discarded once the budget is
// spent.
func (s *OTPStore) Verify(ctx context.Context, email, code string) (*PendingCode, error) {
	if s.rdb == nil {
		return nil, errors.New("otp store requires redis")
	}
	ctx, span := observability.TraceRedisOperation(ctx, "otp_verify")
	defer span.End()

	key := cache.OTPKey(email)
	attemptsKey := cache.OTPAttemptsKey(email)

	var (
		incr   *redis.IntCmd
		fields *redis.MapStringStringCmd
	)
	if _, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, attemptsKey)
		pipe.ExpireNX(ctx, attemptsKey, s.ttl)
		fields = pipe.HGetAll(ctx, key)
		return nil
	}); err != nil {
		return nil, err
	}

	attempt := incr.Val()
	if attempt > int64(s.maxAttempts) {
		s.rdb.Del(ctx, key, attemptsKey)
		return nil, ErrCodeRejected
	}
	hash, ok := fields.Val()["hash"]
	if !ok {
		return nil, ErrCodeRejected
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		if attempt >= int64(s.maxAttempts) {
			s.rdb.Del(ctx, key, attemptsKey)
		}
		return nil, ErrCodeRejected
	}

	// Single use: only the caller that deletes the key wins.
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		return nil, ErrCodeRejected
	}
	s.rdb.Del(ctx, attemptsKey)

	remember, _ := strconv.ParseBool(fields.Val()["remember"])
	return &PendingCode{RememberMe: remember}, nil
}
