// Package storage はユーザーとタスクを保存するドキュメントストアを提供します。
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound は対象のドキュメントが存在しないことを表します。
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict はユーザー名が既に登録済みであることを表します。
	ErrConflict = errors.New("storage: username already exists")
	// ErrInvalidID は識別子の形式が不正であることを表します。
	ErrInvalidID = errors.New("storage: invalid identifier")
)

// User は users コレクションのドキュメントです。
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password"`
}

// Task は todos コレクションのドキュメントです。User は所有者のユーザー名です。
type Task struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	User    string `json:"user"`
}

// UserStore はユーザーの永続化を担います。
type UserStore interface {
	// CreateUser はユーザーを作成し、採番されたIDを設定したコピーを返します。
	// ユーザー名が既に存在する場合は ErrConflict を返します。
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
}

// TaskStore はタスクの永続化を担います。
type TaskStore interface {
	// ListTasks は owner が所有するタスクをストア固有の順序で返します。
	ListTasks(ctx context.Context, owner string) ([]Task, error)
	CreateTask(ctx context.Context, owner, content string) (*Task, error)
	// DeleteTask は owner が所有する id のタスクを削除します。
	// 一致するタスクがない場合は ErrNotFound を返します。
	DeleteTask(ctx context.Context, id, owner string) error
}

// Store は各ドライバーが実装するストア全体のインターフェースです。
type Store interface {
	UserStore
	TaskStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
