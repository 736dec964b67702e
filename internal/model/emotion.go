package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceEmotion はMongoDBのemotionsコレクションのドキュメント。
type SourceEmotion struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	CreatedAt *time.Time         `bson:"createdAt"`
}

// Emotion は移行先のemotionsテーブルの行。
// 台本からはIDではなく名前で参照される。
type Emotion struct {
	LegacyID  string
	Name      string
	CreatedAt string
}
