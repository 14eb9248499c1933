package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内のマップに保存するストアです（開発・テスト用）。
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]User
	byUsername map[string]string
	tasks      map[string]Task
	taskOrder  map[string][]string
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]User),
		byUsername: make(map[string]string),
		tasks:      make(map[string]Task),
		taskOrder:  make(map[string][]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[username]; exists {
		return nil, ErrConflict
	}
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
	}
	s.users[user.ID] = user
	s.byUsername[username] = user.ID
	return &user, nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, owner string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.taskOrder[owner]
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, s.tasks[id])
	}
	return tasks, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, owner, content string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := Task{
		ID:      uuid.NewString(),
		Content: content,
		User:    owner,
	}
	s.tasks[task.ID] = task
	s.taskOrder[owner] = append(s.taskOrder[owner], task.ID)
	return &task, nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id, owner string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.User != owner {
		return ErrNotFound
	}
	delete(s.tasks, id)

	order := s.taskOrder[owner]
	for i, v := range order {
		if v == id {
			s.taskOrder[owner] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
