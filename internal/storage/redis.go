package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix     = "user:"
	usernameKeyPrefix = "username:"
	todoKeyPrefix     = "todo:"
	todoListKeyPrefix = "todos:"
)

// RedisStore はユーザーとタスクを JSON ドキュメントとして Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// createUserScript はユーザー名の確保とユーザー本体の保存を一度に行います。
// KEYS[1]=username:<name>, KEYS[2]=user:<id>, ARGV[1]=id, ARGV[2]=JSON
var createUserScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// CreateUser は username:<name> の確保と user:<id> の保存を Lua スクリプトで原子的に行います。
func (s *RedisStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	keys := []string{usernameKey(username), userKey(user.ID)}
	created, err := createUserScript.Run(ctx, s.rdb, keys, user.ID, payload).Int()
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	if created == 0 {
		return nil, ErrConflict
	}
	return user, nil
}

func (s *RedisStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	var user User
	if err := s.getJSON(ctx, userKey(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *RedisStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	return s.FindUserByID(ctx, id)
}

// ListTasks は todos:<owner> リストの挿入順でタスクを返します。
func (s *RedisStore) ListTasks(ctx context.Context, owner string) ([]Task, error) {
	ids, err := s.rdb.LRange(ctx, todoListKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	tasks := make([]Task, 0, len(ids))
	if len(ids) == 0 {
		return tasks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = todoKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// リストと本体の削除の間に読まれた場合は本体が既に無い
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *RedisStore) CreateTask(ctx context.Context, owner, content string) (*Task, error) {
	task := &Task{
		ID:      uuid.NewString(),
		Content: content,
		User:    owner,
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	tx := s.rdb.TxPipeline()
	tx.Set(ctx, todoKey(task.ID), payload, 0)
	tx.RPush(ctx, todoListKey(owner), task.ID)
	if _, err := tx.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	return task, nil
}

func (s *RedisStore) DeleteTask(ctx context.Context, id, owner string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	key := todoKey(id)
	var task Task
	if err := s.getJSON(ctx, key, &task); err != nil {
		return err
	}
	if task.User != owner {
		return ErrNotFound
	}

	tx := s.rdb.TxPipeline()
	tx.Del(ctx, key)
	tx.LRem(ctx, todoListKey(owner), 0, id)
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.rdb.Close()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dst any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func usernameKey(username string) string {
	return usernameKeyPrefix + username
}

func todoKey(id string) string {
	return todoKeyPrefix + id
}

func todoListKey(owner string) string {
	return todoListKeyPrefix + owner
}
