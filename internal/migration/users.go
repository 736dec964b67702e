package migration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/castmigrate/internal/authadmin"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/source"
)

// PasswordFunc は移行ユーザーに設定する仮パスワードを返す。
type PasswordFunc func() (string, error)

// RandomPassword はユーザーごとに推測不能な仮パスワードを生成する。
// 移行後はパスワードリセットで置き換えられる前提。
func RandomPassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// FixedPassword は全ユーザーに同じ仮パスワードを使うPasswordFuncを返す。
func FixedPassword(p string) PasswordFunc {
	return func() (string, error) { return p, nil }
}

// UserMigratorConfig はUserMigratorの依存関係。
type UserMigratorConfig struct {
	Identities IdentityProvider
	Profiles   repository.ProfileRepository
	Directory  *Directory
	Mode       repository.WriteMode
	// Compensate が真の場合、プロフィール書き込みに失敗した認証IDを削除する。
	Compensate bool
	Password   PasswordFunc
	Recorder   Recorder
	Logger     *slog.Logger
	Out        io.Writer
}

// UserMigrator はusersを認証IDとprofiles行に移行する。
// IDは認証サブシステムが採番するため、IDマッパーを通さない。
type UserMigrator struct {
	identities IdentityProvider
	profiles   repository.ProfileRepository
	directory  *Directory
	mode       repository.WriteMode
	compensate bool
	password   PasswordFunc
	recorder   Recorder
	logger     *slog.Logger
	out        io.Writer

	startedAt time.Time

	mu          sync.Mutex
	compensated []string
	orphaned    []string
}

// NewUserMigrator はUserMigratorを生成する。
func NewUserMigrator(cfg UserMigratorConfig) *UserMigrator {
	m := &UserMigrator{
		identities: cfg.Identities,
		profiles:   cfg.Profiles,
		directory:  cfg.Directory,
		mode:       cfg.Mode,
		compensate: cfg.Compensate,
		password:   cfg.Password,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		out:        cfg.Out,
	}
	if m.password == nil {
		m.password = RandomPassword
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.out == nil {
		m.out = io.Discard
	}
	return m
}

func (m *UserMigrator) Entity() string      { return EntityUsers }
func (m *UserMigrator) Collection() string  { return source.CollectionUsers }
func (m *UserMigrator) DependsOn() []string { return nil }
func (m *UserMigrator) Resumable() bool     { return true }

// Prepare は補完用の実行開始時刻を記録する。
func (m *UserMigrator) Prepare(_ context.Context, startedAt time.Time) error {
	m.startedAt = startedAt
	return nil
}

// MigrateDocument は認証IDを作成し、そのIDでプロフィールを書き込む。
// プロフィールの書き込みに失敗した場合は作成した認証IDを削除して元に戻す。
func (m *UserMigrator) MigrateDocument(ctx context.Context, raw bson.Raw) (string, error) {
	var u model.SourceUser
	if err := bson.Unmarshal(raw, &u); err != nil {
		return "", fmt.Errorf("failed to decode user: %w", err)
	}
	label := u.Email

	profile, err := BuildProfile(&u, m.startedAt)
	if err != nil {
		return label, err
	}

	// upsertモードでは同じメールアドレスのプロフィールを再利用し、認証IDを二重に作らない
	if m.mode == repository.WriteUpsert {
		existing, err := m.profiles.FindIDByEmail(ctx, profile.Email)
		if err != nil {
			return label, err
		}
		if existing != "" {
			profile.ID = existing
			if err := m.profiles.Save(ctx, profile); err != nil {
				return label, err
			}
			m.directory.Remember(u.ID, existing)
			fmt.Fprintf(m.out, "  updated user %s (%s)\n", profile.Email, existing)
			return label, nil
		}
	}

	password, err := m.password()
	if err != nil {
		return label, err
	}

	identity, err := m.identities.CreateUser(ctx, authadmin.CreateUserRequest{
		Email:        profile.Email,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: map[string]interface{}{
			"username":  profile.Username,
			"legacy_id": profile.LegacyID,
		},
	})
	if err != nil {
		if isIdentityConflict(err) {
			return label, m.describeConflict(ctx, profile.Email, err)
		}
		return label, fmt.Errorf("failed to create auth identity: %w", err)
	}

	profile.ID = identity.ID
	if err := m.profiles.Save(ctx, profile); err != nil {
		m.rollbackIdentity(ctx, identity.ID, profile.Email)
		return label, err
	}

	m.directory.Remember(u.ID, identity.ID)
	fmt.Fprintf(m.out, "  migrated user %s (%s)\n", profile.Email, identity.ID)
	return label, nil
}

// rollbackIdentity はプロフィールを持たない認証IDを削除する。
// 削除できなかった場合は孤立IDとして記録し、レポートに載せる。
func (m *UserMigrator) rollbackIdentity(ctx context.Context, id, email string) {
	if !m.compensate {
		m.addOrphan(id)
		return
	}

	// キャンセル済みのコンテキストでも補償だけは試みる
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := m.identities.DeleteUser(cctx, id); err != nil {
		m.logger.Error("failed to compensate auth identity",
			slog.String("identity_id", id),
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		m.recorder.RecordCompensation(CompensationFailed)
		m.addOrphan(id)
		return
	}

	m.logger.Info("compensated auth identity after profile write failure",
		slog.String("identity_id", id),
		slog.String("email", email),
	)
	m.recorder.RecordCompensation(CompensationSucceeded)
	m.mu.Lock()
	m.compensated = append(m.compensated, id)
	m.mu.Unlock()
}

func (m *UserMigrator) addOrphan(id string) {
	m.mu.Lock()
	m.orphaned = append(m.orphaned, id)
	m.mu.Unlock()
}

// describeConflict は既存の認証IDとの衝突を、対応するプロフィールの有無で区別して返す。
func (m *UserMigrator) describeConflict(ctx context.Context, email string, err error) error {
	id, lookupErr := m.profiles.FindIDByEmail(ctx, email)
	switch {
	case lookupErr != nil:
		return fmt.Errorf("auth identity already exists: %w", err)
	case id != "":
		return fmt.Errorf("user already migrated (profile %s): %w", id, err)
	default:
		return fmt.Errorf("auth identity exists without a profile: %w", err)
	}
}

// CompensatedIdentities は補償削除に成功した認証IDを返す。
func (m *UserMigrator) CompensatedIdentities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.compensated...)
}

// OrphanedIdentities はプロフィールを持たずに残った認証IDを返す。
func (m *UserMigrator) OrphanedIdentities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.orphaned...)
}

// BuildProfile は移行元ユーザーからprofiles行を組み立てる。IDは呼び出し側が設定する。
// 欠落した任意項目はデフォルト値で補う。メールアドレスだけは補えない。
func BuildProfile(u *model.SourceUser, startedAt time.Time) (*model.Profile, error) {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return nil, model.MissingField("email")
	}

	createdAt := startedAt
	if u.CreatedAt != nil && !u.CreatedAt.IsZero() {
		createdAt = *u.CreatedAt
	}

	username := strings.TrimSpace(u.Username)
	if username == "" {
		username = email
		if at := strings.IndexByte(email, '@'); at > 0 {
			username = email[:at]
		}
	}

	role := u.Role
	if role == "" {
		role = model.DefaultRole
	}

	sub := model.Subscription{
		Plan:      model.DefaultSubscriptionPlan,
		Status:    model.DefaultSubscriptionStatus,
		StartDate: model.FormatTimestamp(nil, createdAt),
	}
	if s := u.Subscription; s != nil {
		if s.Plan != "" {
			sub.Plan = s.Plan
		}
		if s.Status != "" {
			sub.Status = s.Status
		}
		sub.StartDate = model.FormatTimestamp(s.StartDate, createdAt)
		sub.EndDate = model.FormatOptionalTimestamp(s.EndDate)
	}

	usage := model.Usage{LastResetAt: model.FormatTimestamp(nil, createdAt)}
	if us := u.Usage; us != nil {
		usage.ScriptsGenerated = us.ScriptsGenerated
		usage.MonthlyGenerated = us.MonthlyGenerated
		usage.LastResetAt = model.FormatTimestamp(us.LastResetAt, createdAt)
	}

	return &model.Profile{
		LegacyID:     u.ID.Hex(),
		Email:        email,
		Username:     username,
		Name:         u.Name,
		Role:         role,
		Subscription: sub,
		Usage:        usage,
		CreatedAt:    model.FormatTimestamp(u.CreatedAt, startedAt),
		UpdatedAt:    model.FormatTimestamp(u.UpdatedAt, createdAt),
	}, nil
}

// isIdentityConflict は既存の認証IDとの衝突かどうかを判定する。
func isIdentityConflict(err error) bool {
	return errors.Is(err, model.ErrIdentityExists)
}

// compile-time interface check
var (
	_ Migrator        = (*UserMigrator)(nil)
	_ IdentityJournal = (*UserMigrator)(nil)
)
