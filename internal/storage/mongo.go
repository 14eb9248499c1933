package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	todosCollection = "todos"
)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Password string             `bson:"password"`
}

type todoDocument struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Content string             `bson:"content"`
	User    string             `bson:"user"`
}

// MongoStore は users / todos コレクションを持つ MongoDB ストアです。
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	todos  *mongo.Collection
}

// NewMongoStore は MongoDB に接続し、必要なインデックスを作成します。
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		todos:  db.Collection(todosCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// ensureIndexes はユーザー名の一意制約と所有者検索用のインデックスを作成します。
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.todos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create todos index: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	doc := userDocument{
		ID:       primitive.NewObjectID(),
		Username: username,
		Password: passwordHash,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, insertUserError(err)
	}
	return doc.toUser(), nil
}

// insertUserError は username の一意制約違反を ErrConflict に変換します。
func insertUserError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return fmt.Errorf("insert user: %w", err)
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *MongoStore) ListTasks(ctx context.Context, owner string) ([]Task, error) {
	cursor, err := s.todos.Find(ctx, bson.M{"user": owner})
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []todoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toTask())
	}
	return tasks, nil
}

func (s *MongoStore) CreateTask(ctx context.Context, owner, content string) (*Task, error) {
	doc := todoDocument{
		ID:      primitive.NewObjectID(),
		Content: content,
		User:    owner,
	}
	if _, err := s.todos.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	task := doc.toTask()
	return &task, nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, id, owner string) error {
	filter, err := ownedTaskFilter(id, owner)
	if err != nil {
		return err
	}
	res, err := s.todos.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ownedTaskFilter は所有者が一致するタスクだけに当たるフィルターを返します。
func ownedTaskFilter(id, owner string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return bson.M{"_id": oid, "user": owner}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d userDocument) toUser() *User {
	return &User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
	}
}

func (d todoDocument) toTask() Task {
	return Task{
		ID:      d.ID.Hex(),
		Content: d.Content,
		User:    d.User,
	}
}
