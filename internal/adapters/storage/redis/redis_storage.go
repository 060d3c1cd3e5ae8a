// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

// slidingWindowScript executa evict + contagem + registro condicional numa única operação atômica.
// ARGV: now_ms, window_ms, capacity, member, server_clock. Com server_clock = "1" o relógio do
// Redis (TIME) substitui now_ms, e instâncias com relógios divergentes compartilham o mesmo corte.
// Retorna {admitted, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
if ARGV[5] == "1" then
  local t = redis.call("TIME")
  now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local admitted = 0
if count < capacity then
  redis.call("ZADD", key, now, ARGV[4])
  count = count + 1
  admitted = 1
end

local oldest = 0
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if first[2] then
  oldest = tonumber(first[2])
end
if count > 0 then
  redis.call("PEXPIRE", key, window)
end
return {admitted, count, oldest}
`)

type Storage struct {
	client      *redis.Client
	serverClock bool
}

var _ ports.WindowStore = (*Storage)(nil)

// Config aceita uma URL (redis:// ou rediss://) ou endereço, com credencial opcional.
type Config struct {
	URL      string
	Token    string
	Addr     string
	Password string
	DB       int
	// ServerClock pontua os eventos com o relógio do Redis em vez do relógio do processo.
	ServerClock bool
}

func (cfg Config) options() (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if opts.Password == "" {
			opts.Password = cfg.Token
		}
		return opts, nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	password := cfg.Password
	if password == "" {
		password = cfg.Token
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	}, nil
}

func New(cfg Config) (*Storage, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Storage{client: client, serverClock: cfg.ServerClock}, nil
}

type Option func(*Storage)

// WithServerClock faz o script usar o TIME do Redis como instante da tentativa.
func WithServerClock() Option {
	return func(s *Storage) { s.serverClock = true }
}

// NewFromClient usa um client já configurado; quem chama continua dono do client.
func NewFromClient(client *redis.Client, opts ...Option) *Storage {
	s := &Storage{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Client() *redis.Client {
	return s.client
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (ports.WindowResult, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	serverClock := "0"
	if s.serverClock {
		serverClock = "1"
	}

	res, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		nowMs, window.Milliseconds(), capacity, member, serverClock).Int64Slice()
	if err != nil {
		return ports.WindowResult{}, err
	}
	if len(res) != 3 {
		return ports.WindowResult{}, fmt.Errorf("sliding window script: unexpected reply length %d", len(res))
	}

	out := ports.WindowResult{
		Admitted: res[0] == 1,
		Count:    int(res[1]),
	}
	if res[2] > 0 {
		out.Oldest = time.UnixMilli(res[2])
	}
	return out, nil
}
