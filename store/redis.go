package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Repository on Redis. Tickets are JSON strings,
// solutions are hashes with a CBOR actions field; both are indexed by a
// sorted set scored with the creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ Repository = (*RedisStore)(nil)

func NewRedis(ctx context.Context, logger shared.LoggerAdapter, address, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connecting to redis: %v", shared.ErrStorage, err)
	}
	logger.Info("connected to redis", zap.String("address", address), zap.Int("db", db))
	return NewRedisWithClient(client, prefix), nil
}

func NewRedisWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "remotedesk"
	}
	return &RedisStore{client: client, prefix: prefix + ":", now: time.Now}
}

func (r *RedisStore) ticketKey(id string) string   { return r.prefix + "ticket:" + id }
func (r *RedisStore) ticketsKey() string           { return r.prefix + "tickets" }
func (r *RedisStore) solutionKey(id string) string { return r.prefix + "solution:" + id }
func (r *RedisStore) solutionsKey() string         { return r.prefix + "solutions" }

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) GetTickets(ctx context.Context) ([]remotedesk.Ticket, error) {
	ids, err := r.client.ZRevRange(ctx, r.ticketsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list tickets: %v", shared.ErrStorage, err)
	}
	tickets := make([]remotedesk.Ticket, 0, len(ids))
	if len(ids) == 0 {
		return tickets, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.ticketKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load tickets: %v", shared.ErrStorage, err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a body; skip it.
			continue
		}
		var t remotedesk.Ticket
		if err := sonic.UnmarshalString(raw, &t); err != nil {
			return nil, fmt.Errorf("%w: decode ticket %s: %v", shared.ErrStorage, ids[i], err)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (r *RedisStore) CreateTicket(ctx context.Context, t remotedesk.Ticket) (*remotedesk.Ticket, error) {
	t, err := prepareTicket(t, r.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := r.writeTicket(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RedisStore) UpdateTicket(ctx context.Context, t remotedesk.Ticket) error {
	if _, err := r.GetTicketByID(ctx, t.ID); err != nil {
		return err
	}
	t, err := prepareTicket(t, r.now().UTC())
	if err != nil {
		return err
	}
	return r.writeTicket(ctx, t)
}

func (r *RedisStore) writeTicket(ctx context.Context, t remotedesk.Ticket) error {
	data, err := sonic.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: encode ticket: %v", shared.ErrStorage, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.ticketKey(t.ID), data, 0)
		pipe.ZAdd(ctx, r.ticketsKey(), redis.Z{Score: float64(t.CreatedAt.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write ticket %s: %v", shared.ErrStorage, t.ID, err)
	}
	return nil
}

func (r *RedisStore) GetTicketByID(ctx context.Context, id string) (*remotedesk.Ticket, error) {
	data, err := r.client.Get(ctx, r.ticketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: ticket %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get ticket: %v", shared.ErrStorage, err)
	}
	var t remotedesk.Ticket
	if err := sonic.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: decode ticket %s: %v", shared.ErrStorage, id, err)
	}
	return &t, nil
}

func (r *RedisStore) CreateSolution(ctx context.Context, ns remotedesk.NewSolution) (*remotedesk.Solution, error) {
	sol, err := prepareSolution(ns, r.now().UTC())
	if err != nil {
		return nil, err
	}
	blob, err := encodeActions(sol.Actions)
	if err != nil {
		return nil, fmt.Errorf("%w: encode actions: %v", shared.ErrStorage, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.solutionKey(sol.ID), map[string]any{
			"problem":    sol.ProblemDescription,
			"solution":   sol.SolutionDescription,
			"actions":    blob,
			"created_at": sol.CreatedAt.UnixMilli(),
		})
		pipe.ZAdd(ctx, r.solutionsKey(), redis.Z{Score: float64(sol.CreatedAt.UnixMilli()), Member: sol.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: write solution: %v", shared.ErrStorage, err)
	}
	return &sol, nil
}

func (r *RedisStore) solutionFromHash(id string, h map[string]string) (*remotedesk.Solution, error) {
	actions, err := decodeActions([]byte(h["actions"]))
	if err != nil {
		return nil, err
	}
	createdAt, err := strconv.ParseInt(h["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding created_at: %w", err)
	}
	return &remotedesk.Solution{
		ID:                  id,
		ProblemDescription:  h["problem"],
		SolutionDescription: h["solution"],
		Actions:             actions,
		CreatedAt:           time.UnixMilli(createdAt).UTC(),
	}, nil
}

func (r *RedisStore) GetSolution(ctx context.Context, id string) (*remotedesk.Solution, error) {
	h, err := r.client.HGetAll(ctx, r.solutionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: get solution: %v", shared.ErrStorage, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: solution %s", shared.ErrNotFound, id)
	}
	sol, err := r.solutionFromHash(id, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return sol, nil
}

func (r *RedisStore) FindSolutions(ctx context.Context, query string) ([]remotedesk.Solution, error) {
	ids, err := r.client.ZRevRange(ctx, r.solutionsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list solutions: %v", shared.ErrStorage, err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.solutionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load solutions: %v", shared.ErrStorage, err)
	}

	terms := queryTerms(query)
	solutions := []remotedesk.Solution{}
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 || !matchesTerms(h["problem"], terms) {
			continue
		}
		sol, err := r.solutionFromHash(ids[i], h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		solutions = append(solutions, *sol)
	}
	return solutions, nil
}
