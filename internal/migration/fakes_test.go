package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/castmigrate/internal/authadmin"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
)

// oid はテスト用に連番のObjectIDを生成する。
func oid(n int) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(fmt.Sprintf("65a1b2c3d4e5f6a7b8%06x", n))
	if err != nil {
		panic(err)
	}
	return id
}

// fakeSource はコレクションごとのドキュメントを保持するインメモリのSource。
type fakeSource struct {
	docs    map[string][]bson.M
	pingErr error
	// cursorErr が設定されたコレクションは走査開始時に失敗する
	cursorErr map[string]error
	// onDocument は各ドキュメントを渡す直前に呼ばれる
	onDocument func(collection string, n int)
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: map[string][]bson.M{}, cursorErr: map[string]error{}}
}

func (s *fakeSource) add(collection string, doc bson.M) {
	s.docs[collection] = append(s.docs[collection], doc)
}

func (s *fakeSource) Ping(context.Context) error { return s.pingErr }

func (s *fakeSource) Each(ctx context.Context, collection string, after primitive.ObjectID, fn func(bson.Raw) error) error {
	if err := s.cursorErr[collection]; err != nil {
		return err
	}

	docs := append([]bson.M(nil), s.docs[collection]...)
	sort.Slice(docs, func(i, j int) bool {
		return docs[i]["_id"].(primitive.ObjectID).Hex() < docs[j]["_id"].(primitive.ObjectID).Hex()
	})

	n := 0
	for _, d := range docs {
		if !after.IsZero() && d["_id"].(primitive.ObjectID).Hex() <= after.Hex() {
			continue
		}
		if s.onDocument != nil {
			s.onDocument(collection, n)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := bson.Marshal(d)
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
		n++
	}
	return ctx.Err()
}

func (s *fakeSource) FindUserEmail(_ context.Context, id primitive.ObjectID) (string, error) {
	for _, d := range s.docs["users"] {
		if d["_id"] == id {
			email, _ := d["email"].(string)
			return email, nil
		}
	}
	return "", nil
}

// fakeIdentities はインメモリの認証サブシステム。
type fakeIdentities struct {
	mu        sync.Mutex
	users     map[string]string // email -> id
	failEmail map[string]bool
	deleteErr error
	deleted   []string
	healthErr error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{users: map[string]string{}, failEmail: map[string]bool{}}
}

func (f *fakeIdentities) CreateUser(_ context.Context, req authadmin.CreateUserRequest) (*authadmin.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.ToLower(req.Email)
	if f.failEmail[key] {
		return nil, errors.New("auth api unavailable")
	}
	if _, ok := f.users[key]; ok {
		return nil, fmt.Errorf("create user: %w", model.ErrIdentityExists)
	}
	id := uuid.NewString()
	f.users[key] = id
	return &authadmin.User{ID: id, Email: req.Email}, nil
}

func (f *fakeIdentities) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	for email, uid := range f.users {
		if uid == id {
			delete(f.users, email)
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIdentities) Health(context.Context) error { return f.healthErr }

func (f *fakeIdentities) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeProfiles はインメモリのProfileRepository。
type fakeProfiles struct {
	rows      map[string]*model.Profile
	failEmail map[string]bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: map[string]*model.Profile{}, failEmail: map[string]bool{}}
}

func (f *fakeProfiles) Save(_ context.Context, p *model.Profile) error {
	if f.failEmail[strings.ToLower(p.Email)] {
		return errors.New("duplicate key value violates unique constraint")
	}
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakeProfiles) FindIDByEmail(_ context.Context, email string) (string, error) {
	for id, p := range f.rows {
		if strings.EqualFold(p.Email, email) {
			return id, nil
		}
	}
	return "", nil
}

func (f *fakeProfiles) Count(context.Context) (int, error) { return len(f.rows), nil }

// fakeEmotions はインメモリのEmotionRepository。
type fakeEmotions struct {
	rows      []*model.Emotion
	deleteErr error
}

func (f *fakeEmotions) DeleteAll(context.Context) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := int64(len(f.rows))
	f.rows = nil
	return n, nil
}

func (f *fakeEmotions) Save(_ context.Context, e *model.Emotion) error {
	cp := *e
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeEmotions) Count(context.Context) (int, error) { return len(f.rows), nil }

// keyedRows はappendなら追記、upsertならlegacy_idで上書きする行の集合。
type keyedRows[T any] struct {
	mode repository.WriteMode
	keys []string
	rows []T
}

func (k *keyedRows[T]) put(key string, row T) {
	if k.mode == repository.WriteUpsert {
		for i, existing := range k.keys {
			if existing == key {
				k.rows[i] = row
				return
			}
		}
	}
	k.keys = append(k.keys, key)
	k.rows = append(k.rows, row)
}

type fakeScripts struct {
	keyedRows[model.Script]
}

func (f *fakeScripts) Save(_ context.Context, s *model.Script) error {
	f.put(s.LegacyID, *s)
	return nil
}

func (f *fakeScripts) Count(context.Context) (int, error) { return len(f.rows), nil }

type fakeAIScripts struct {
	keyedRows[model.AIScript]
}

func (f *fakeAIScripts) Save(_ context.Context, s *model.AIScript) error {
	f.put(s.LegacyID, *s)
	return nil
}

func (f *fakeAIScripts) Count(context.Context) (int, error) { return len(f.rows), nil }

type fakeReactions struct {
	keyedRows[model.Reaction]
	table string
}

func (f *fakeReactions) Table() string { return f.table }

func (f *fakeReactions) Save(_ context.Context, r *model.Reaction) error {
	f.put(r.LegacyID, *r)
	return nil
}

func (f *fakeReactions) Count(context.Context) (int, error) { return len(f.rows), nil }

// fakeCheckpoints はインメモリのCheckpointRepository。
type fakeCheckpoints struct {
	rows map[string]string
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{rows: map[string]string{}}
}

func (f *fakeCheckpoints) Find(_ context.Context, entity string) (*model.Checkpoint, error) {
	id, ok := f.rows[entity]
	if !ok {
		return nil, nil
	}
	return &model.Checkpoint{Entity: entity, LastSourceID: id}, nil
}

func (f *fakeCheckpoints) Save(_ context.Context, cp *model.Checkpoint) error {
	f.rows[cp.Entity] = cp.LastSourceID
	return nil
}

func (f *fakeCheckpoints) List(context.Context) ([]*model.Checkpoint, error) {
	var out []*model.Checkpoint
	for e, id := range f.rows {
		out = append(out, &model.Checkpoint{Entity: e, LastSourceID: id})
	}
	return out, nil
}

// fakeRecorder は記録されたメトリクスを数える。
type fakeRecorder struct {
	mu            sync.Mutex
	rows          map[string]int
	compensations map[string]int
	durations     []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{rows: map[string]int{}, compensations: map[string]int{}}
}

func (r *fakeRecorder) RecordRow(entity, result string) {
	r.mu.Lock()
	r.rows[entity+"/"+result]++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveEntityDuration(entity string, _ time.Duration) {
	r.mu.Lock()
	r.durations = append(r.durations, entity)
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordCompensation(result string) {
	r.mu.Lock()
	r.compensations[result]++
	r.mu.Unlock()
}

// compile-time interface check
var (
	_ Source                          = (*fakeSource)(nil)
	_ IdentityProvider                = (*fakeIdentities)(nil)
	_ repository.ProfileRepository    = (*fakeProfiles)(nil)
	_ repository.EmotionRepository    = (*fakeEmotions)(nil)
	_ repository.ScriptRepository     = (*fakeScripts)(nil)
	_ repository.AIScriptRepository   = (*fakeAIScripts)(nil)
	_ repository.ReactionRepository   = (*fakeReactions)(nil)
	_ repository.CheckpointRepository = (*fakeCheckpoints)(nil)
	_ Recorder                        = (*fakeRecorder)(nil)
)
