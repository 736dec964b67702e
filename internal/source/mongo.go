// Package source はドキュメントストア（MongoDB）からの読み取りを提供する。
// 移行ツールはソースに書き戻さない。
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// コレクション名（Mongooseのモデル名を複数形・小文字にしたもの）
const (
	CollectionUsers     = "users"
	CollectionEmotions  = "emotions"
	CollectionScripts   = "scripts"
	CollectionAIScripts = "aiscripts"
	CollectionLikes     = "likes"
	CollectionBookmarks = "bookmarks"
)

// MongoSource はMongoDBのデータベースを読み取り専用で扱う。
type MongoSource struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect はMongoDBに接続する。
// 接続確認はPingで行うこと。
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*MongoSource, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetReadPreference(readpref.SecondaryPreferred())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	return &MongoSource{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Ping はMongoDBへの到達性を確認する。
func (s *MongoSource) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.SecondaryPreferred()); err != nil {
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return nil
}

// Close は接続を閉じる。
func (s *MongoSource) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongodb: %w", err)
	}
	return nil
}

// Count はコレクションのドキュメント数を返す。
func (s *MongoSource) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// Each はコレクションの全ドキュメントを_id昇順に1件ずつfnへ渡す。
// afterがNilObjectIDでない場合は_idがafterより大きいドキュメントのみを対象にする。
// fnがエラーを返すと走査を中止してそのエラーを返す。
// コンテキストがキャンセルされた場合はコンテキストのエラーを返す。
func (s *MongoSource) Each(ctx context.Context, collection string, after primitive.ObjectID, fn func(bson.Raw) error) error {
	filter := bson.D{}
	if !after.IsZero() {
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: after}}}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer cur.Close(context.WithoutCancel(ctx))

	for cur.Next(ctx) {
		// カーソルのバッファは次のNextで再利用されるためコピーして渡す
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		if err := fn(raw); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("cursor error on %s: %w", collection, err)
	}
	return nil
}

// FindUserEmail はユーザーのメールアドレスを返す。見つからない場合は空文字列を返す。
func (s *MongoSource) FindUserEmail(ctx context.Context, id primitive.ObjectID) (string, error) {
	var doc struct {
		Email string `bson:"email"`
	}
	opts := options.FindOne().SetProjection(bson.D{{Key: "email", Value: 1}})
	err := s.db.Collection(CollectionUsers).FindOne(ctx, bson.D{{Key: "_id", Value: id}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user email: %w", err)
	}
	return doc.Email, nil
}

// DocumentID はドキュメントの_idを取り出す。_idがObjectIDでない場合はNilObjectIDを返す。
func DocumentID(raw bson.Raw) primitive.ObjectID {
	v, err := raw.LookupErr("_id")
	if err != nil {
		return primitive.NilObjectID
	}
	id, ok := v.ObjectIDOK()
	if !ok {
		return primitive.NilObjectID
	}
	return id
}
