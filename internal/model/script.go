package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceAuthor は台本に埋め込まれた作成者のスナップショット。
// 外部キーではなく非正規化されたコピー。
type SourceAuthor struct {
	Name     string `bson:"name"`
	Username string `bson:"username"`
}

// SourceScript はMongoDBのscriptsコレクションのドキュメント。
type SourceScript struct {
	ID             primitive.ObjectID `bson:"_id"`
	Title          string             `bson:"title"`
	CharacterCount int                `bson:"characterCount"`
	Situation      string             `bson:"situation"`
	Content        string             `bson:"content"`
	Emotions       []string           `bson:"emotions"`
	Views          int                `bson:"views"`
	Mood           string             `bson:"mood"`
	Duration       string             `bson:"duration"`
	AgeGroup       string             `bson:"ageGroup"`
	Purpose        string             `bson:"purpose"`
	Gender         string             `bson:"gender"`
	Author         *SourceAuthor      `bson:"author"`
	IsPublic       *bool              `bson:"isPublic"`
	CreatedAt      *time.Time         `bson:"createdAt"`
	UpdatedAt      *time.Time         `bson:"updatedAt"`
}

// SourceGeneration はAI台本の生成メタデータ。
type SourceGeneration struct {
	Model            string     `bson:"model"`
	PromptTokens     int        `bson:"promptTokens"`
	CompletionTokens int        `bson:"completionTokens"`
	TotalTokens      int        `bson:"totalTokens"`
	GeneratedAt      *time.Time `bson:"generatedAt"`
}

// SourceAIScript はMongoDBのaiscriptsコレクションのドキュメント。
// UserIDは所有ユーザーへの本物の外部キー。
type SourceAIScript struct {
	SourceScript `bson:",inline"`
	UserID       primitive.ObjectID `bson:"userId"`
	Metadata     *SourceGeneration  `bson:"metadata"`
	IsSaved      bool               `bson:"isSaved"`
}

// Author はscripts.author（jsonb）の形。
type Author struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Script は移行先のscriptsテーブルの行。
type Script struct {
	LegacyID       string
	Title          string
	CharacterCount int
	Situation      string
	Content        string
	Emotions       []string
	Views          int
	Mood           string
	Duration       string
	AgeGroup       string
	Purpose        string
	Gender         string
	Author         Author
	IsPublic       bool
	CreatedAt      string
	UpdatedAt      string
}

// Generation はai_scripts.generation（jsonb）の形。
type Generation struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	GeneratedAt      string `json:"generated_at,omitempty"`
}

// AIScript は移行先のai_scriptsテーブルの行。
type AIScript struct {
	Script
	UserID     string
	Generation Generation
	IsSaved    bool
}
