package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceReaction はMongoDBのlikes / bookmarksコレクションのドキュメント。
// いいね・ブックマークのトグルで作成される。
type SourceReaction struct {
	ID         primitive.ObjectID `bson:"_id"`
	UserID     primitive.ObjectID `bson:"userId"`
	TargetID   primitive.ObjectID `bson:"targetId"`
	TargetType string             `bson:"targetType"`
	CreatedAt  *time.Time         `bson:"createdAt"`
}

// Reaction は移行先のlikes / bookmarksテーブルの行。
type Reaction struct {
	LegacyID   string
	UserID     string
	TargetType string
	TargetID   string
	CreatedAt  string
}
