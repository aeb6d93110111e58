package datadirector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis key schema, grounded on the dedicated key-constant block
// mikiasyonas-Micro-Casino/internal/services/redis_keys.go uses for its
// own record types.
const (
	keyUserRecord      = "ddserver:user:%s"
	keyCharacterRecord = "ddserver:character:%d"
)

type userResult struct {
	done bool
	user User
	err  error
}

type characterResult struct {
	done bool
	char Character
	err  error
}

// Redis is a Director backed by a Redis server. Records are stored as
// JSON values under name/uid-derived keys; RequestLoad* launches a
// background fetch and AreDataBeingLoaded polls its completion, the
// same request/poll split the in-memory implementation exposes so the
// lobby's tick loop is agnostic to which one is wired in.
type Redis struct {
	client *redis.Client
	ctx    context.Context

	mu    sync.Mutex
	users map[string]*userResult
	chars map[uint32]*characterResult
}

// NewRedis dials addr (and pings it) and returns a ready Redis
// director, grounded on NewRedisService's connect-and-ping
// construction.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("datadirector: connect to redis: %w", err)
	}

	return &Redis{
		client: client,
		ctx:    ctx,
		users:  make(map[string]*userResult),
		chars:  make(map[uint32]*characterResult),
	}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// SaveUser persists a user record as JSON, for use by whatever external
// process provisions accounts; the lobby pipeline itself only reads.
func (r *Redis) SaveUser(u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("datadirector: marshal user: %w", err)
	}
	key := fmt.Sprintf(keyUserRecord, u.Name)
	return r.client.Set(r.ctx, key, data, 0).Err()
}

// SaveCharacter persists a character record as JSON.
func (r *Redis) SaveCharacter(c Character) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("datadirector: marshal character: %w", err)
	}
	key := fmt.Sprintf(keyCharacterRecord, c.UID)
	return r.client.Set(r.ctx, key, data, 0).Err()
}

func (r *Redis) RequestLoadUser(name string) {
	r.mu.Lock()
	if _, requested := r.users[name]; requested {
		r.mu.Unlock()
		return
	}
	r.users[name] = &userResult{}
	r.mu.Unlock()

	go func() {
		key := fmt.Sprintf(keyUserRecord, name)
		data, err := r.client.Get(r.ctx, key).Result()

		result := &userResult{done: true}
		switch {
		case err == redis.Nil:
			result.err = ErrNotFound
		case err != nil:
			result.err = fmt.Errorf("datadirector: load user %q: %w", name, err)
		default:
			if err := json.Unmarshal([]byte(data), &result.user); err != nil {
				result.err = fmt.Errorf("datadirector: unmarshal user %q: %w", name, err)
			}
		}

		r.mu.Lock()
		r.users[name] = result
		r.mu.Unlock()
	}()
}

func (r *Redis) AreUserDataBeingLoaded(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, requested := r.users[name]
	return requested && !res.done
}

func (r *Redis) GetUser(name string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, requested := r.users[name]
	if !requested || !res.done {
		return User{}, ErrNotFound
	}
	return res.user, res.err
}

func (r *Redis) RequestLoadCharacter(uid uint32) {
	r.mu.Lock()
	if _, requested := r.chars[uid]; requested {
		r.mu.Unlock()
		return
	}
	r.chars[uid] = &characterResult{}
	r.mu.Unlock()

	go func() {
		key := fmt.Sprintf(keyCharacterRecord, uid)
		data, err := r.client.Get(r.ctx, key).Result()

		result := &characterResult{done: true}
		switch {
		case err == redis.Nil:
			result.err = ErrNotFound
		case err != nil:
			result.err = fmt.Errorf("datadirector: load character %d: %w", uid, err)
		default:
			if err := json.Unmarshal([]byte(data), &result.char); err != nil {
				result.err = fmt.Errorf("datadirector: unmarshal character %d: %w", uid, err)
			}
		}

		r.mu.Lock()
		r.chars[uid] = result
		r.mu.Unlock()
	}()
}

func (r *Redis) AreCharacterDataBeingLoaded(uid uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, requested := r.chars[uid]
	return requested && !res.done
}

func (r *Redis) GetCharacter(uid uint32) (Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, requested := r.chars[uid]
	if !requested || !res.done {
		return Character{}, ErrNotFound
	}
	return res.char, res.err
}

var _ Director = (*Redis)(nil)
