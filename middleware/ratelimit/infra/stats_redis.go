package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por identidade.
	// total, policy e route são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*RedisStatsStore)(nil)
	_ domain.StatsReader = (*RedisStatsStore)(nil)
)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: domain.DefaultStatsPrefix,
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if ev.Policy != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy", ev.Policy+":"+field, 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if route := routeName(ev.Method, ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Identity)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Summary lê os hashes cumulativos (total, policy, route).
func (s *RedisStatsStore) Summary(ctx context.Context) (domain.StatsSummary, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.prefix+":total")
	policyCmd := pipe.HGetAll(ctx, s.prefix+":policy")
	routeCmd := pipe.HGetAll(ctx, s.prefix+":route")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSummary{}, err
	}

	sum := domain.StatsSummary{
		ByPolicy: make(map[string]domain.Counters),
		ByRoute:  make(map[string]domain.Counters),
	}
	for field, raw := range totalCmd.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.StatsSummary{}, fmt.Errorf("redis stats: total %s: %w", field, err)
		}
		sum.Total.Add(domain.Outcome(field), n)
	}
	if err := foldGrouped(policyCmd.Val(), sum.ByPolicy); err != nil {
		return domain.StatsSummary{}, err
	}
	if err := foldGrouped(routeCmd.Val(), sum.ByRoute); err != nil {
		return domain.StatsSummary{}, err
	}
	return sum, nil
}

// foldGrouped converte campos "<grupo>:<outcome>" em contadores por grupo.
// O outcome nunca tem ':', então o último separador é o certo.
func foldGrouped(fields map[string]string, out map[string]domain.Counters) error {
	for field, raw := range fields {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("redis stats: %s: %w", field, err)
		}
		group := field[:i]
		c := out[group]
		c.Add(domain.Outcome(field[i+1:]), n)
		out[group] = c
	}
	return nil
}

func routeName(method, path string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
}
