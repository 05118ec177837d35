package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "flipframe:credits"

// Limiter admits weighted requests per subject.
type Limiter interface {
	Allow(ctx context.Context, subject string, cost int64) (Decision, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Policy sizes a credit bucket: Capacity credits refill evenly over Window.
type Policy struct {
	Capacity  int
	Window    time.Duration
	KeyPrefix string
}

func (p Policy) validate() error {
	if p.Capacity <= 0 {
		return errors.New("credit capacity must be positive")
	}
	if p.Window <= 0 {
		return errors.New("credit refill window must be positive")
	}
	return nil
}

// spendCredits refills a subject's balance for the elapsed time, then spends
// ARGV[4] credits if the balance covers them. Replies with
// {granted, balance, wait_ms}.
var spendCredits = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "balance", "refilled_at")
local balance = tonumber(state[1]) or capacity
local refilled_at = tonumber(state[2]) or now_ms

balance = math.min(capacity, balance + math.max(0, now_ms - refilled_at) * per_ms)

local granted = 0
local wait_ms = 0
if balance >= cost then
  balance = balance - cost
  granted = 1
else
  wait_ms = math.ceil((cost - balance) / per_ms)
end

redis.call("HSET", KEYS[1], "balance", balance, "refilled_at", now_ms)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {granted, math.floor(balance), wait_ms}
`)

// CreditBucket meters render work per subject in Redis. Cheap requests cost
// one credit; wide glyph previews cost more.
type CreditBucket struct {
	client  redis.UniversalClient
	policy  Policy
	perMS   float64
	idleTTL time.Duration
	now     func() time.Time
}

func NewCreditBucket(client redis.UniversalClient, policy Policy) (*CreditBucket, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(policy.KeyPrefix) == "" {
		policy.KeyPrefix = DefaultKeyPrefix
	}

	windowMS := max(1, policy.Window.Milliseconds())
	return &CreditBucket{
		client:  client,
		policy:  policy,
		perMS:   float64(policy.Capacity) / float64(windowMS),
		idleTTL: 2 * policy.Window,
		now:     time.Now,
	}, nil
}

// Allow spends cost credits from the subject's bucket. Costs are clamped to
// [1, capacity] so that an oversized request waits for a full bucket instead
// of being refused forever.
func (b *CreditBucket) Allow(ctx context.Context, subject string, cost int64) (Decision, error) {
	reply, err := spendCredits.Run(
		ctx,
		b.client,
		[]string{b.key(subject)},
		b.policy.Capacity,
		b.perMS,
		b.now().UTC().UnixMilli(),
		clampCost(cost, int64(b.policy.Capacity)),
		b.idleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("spend credits: %w", err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("spend credits: unexpected reply length %d", len(reply))
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  reply[1],
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

func (b *CreditBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return b.policy.KeyPrefix + ":" + subject
}

func clampCost(cost, capacity int64) int64 {
	return min(max(cost, 1), capacity)
}
