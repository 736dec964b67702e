package migration

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/castmigrate/internal/model"
)

// EmailLookup は移行元でユーザーIDからメールアドレスを引く。
type EmailLookup interface {
	FindUserEmail(ctx context.Context, id primitive.ObjectID) (string, error)
}

// ProfileLookup は移行先でメールアドレスからプロフィールIDを引く。
type ProfileLookup interface {
	FindIDByEmail(ctx context.Context, email string) (string, error)
}

// Directory は移行元のユーザーIDを移行先のプロフィールIDに解決する。
// 認証IDはソースIDから導出できないため、メールアドレスを介した二次参照で解決し、結果をキャッシュする。
type Directory struct {
	cache    *cache.Cache
	emails   EmailLookup
	profiles ProfileLookup
}

// NewDirectory はDirectoryを生成する。
// エントリは実行中ずっと有効なので期限切れもjanitorも使わない。
func NewDirectory(emails EmailLookup, profiles ProfileLookup) *Directory {
	return &Directory{
		cache:    cache.New(cache.NoExpiration, 0),
		emails:   emails,
		profiles: profiles,
	}
}

// Remember はユーザー移行時に確定した対応を記録する。
func (d *Directory) Remember(sourceID primitive.ObjectID, profileID string) {
	d.cache.Set(sourceID.Hex(), profileID, cache.NoExpiration)
}

// Len はキャッシュ済みの件数を返す。
func (d *Directory) Len() int {
	return d.cache.ItemCount()
}

// Resolve は移行元のユーザーIDに対応するプロフィールIDを返す。
// 解決できない場合はmodel.ErrUserNotMigratedを返す。
func (d *Directory) Resolve(ctx context.Context, sourceID primitive.ObjectID) (string, error) {
	if sourceID.IsZero() {
		return "", model.MissingField("userId")
	}
	if v, ok := d.cache.Get(sourceID.Hex()); ok {
		return v.(string), nil
	}

	email, err := d.emails.FindUserEmail(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to look up source user: %w", err)
	}
	if email == "" {
		return "", fmt.Errorf("%w: source user %s not found", model.ErrUserNotMigrated, sourceID.Hex())
	}

	id, err := d.profiles.FindIDByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to look up profile: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", model.ErrUserNotMigrated, email)
	}

	d.Remember(sourceID, id)
	return id, nil
}
