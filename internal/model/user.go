package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceUser はMongoDBのusersコレクションのドキュメント。
// passwordは移行後にリセットされるため読み捨てる。
type SourceUser struct {
	ID           primitive.ObjectID  `bson:"_id"`
	Email        string              `bson:"email"`
	Username     string              `bson:"username"`
	Name         string              `bson:"name"`
	Password     string              `bson:"password"`
	Role         string              `bson:"role"`
	Subscription *SourceSubscription `bson:"subscription"`
	Usage        *SourceUsage        `bson:"usage"`
	CreatedAt    *time.Time          `bson:"createdAt"`
	UpdatedAt    *time.Time          `bson:"updatedAt"`
}

// SourceSubscription はユーザーに埋め込まれた購読プラン。
type SourceSubscription struct {
	Plan      string     `bson:"plan"`
	Status    string     `bson:"status"`
	StartDate *time.Time `bson:"startDate"`
	EndDate   *time.Time `bson:"endDate"`
}

// SourceUsage はユーザーに埋め込まれた利用回数カウンタ。
type SourceUsage struct {
	ScriptsGenerated int        `bson:"scriptsGenerated"`
	MonthlyGenerated int        `bson:"monthlyGenerated"`
	LastResetAt      *time.Time `bson:"lastResetAt"`
}

// Profile は移行先のprofilesテーブルの行。
// IDは認証サブシステムが採番したユーザーIDで、ソースIDからは導出できない。
type Profile struct {
	ID           string
	LegacyID     string
	Email        string
	Username     string
	Name         string
	Role         string
	Subscription Subscription
	Usage        Usage
	CreatedAt    string
	UpdatedAt    string
}

// Subscription はprofiles.subscription（jsonb）の形。
type Subscription struct {
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// Usage はprofiles.usage（jsonb）の形。
type Usage struct {
	ScriptsGenerated int    `json:"scripts_generated"`
	MonthlyGenerated int    `json:"monthly_generated"`
	LastResetAt      string `json:"last_reset_at"`
}

// デフォルト値
const (
	DefaultRole               = "user"
	DefaultSubscriptionPlan   = "free"
	DefaultSubscriptionStatus = "active"
)
