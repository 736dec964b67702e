package migration

import "sync"

// EntityStats は1エンティティ分の件数。
type EntityStats struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Errors   int `json:"errors"`
}

// EntitySnapshot はエンティティ名付きの件数。
type EntitySnapshot struct {
	Entity string `json:"entity"`
	EntityStats
}

// Stats はエンティティごとの件数を登録順に保持する。
// 書き込むのは実行中の1つのMigratorだけだが、進捗サーバーが並行して読むためロックする。
type Stats struct {
	mu       sync.Mutex
	order    []string
	entities map[string]*EntityStats
}

// NewStats はStatsを生成する。
func NewStats() *Stats {
	return &Stats{entities: make(map[string]*EntityStats)}
}

// Register はエンティティを登録する。登録済みの場合は何もしない。
func (s *Stats) Register(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(entity)
}

func (s *Stats) register(entity string) *EntityStats {
	es, ok := s.entities[entity]
	if !ok {
		es = &EntityStats{}
		s.entities[entity] = es
		s.order = append(s.order, entity)
	}
	return es
}

// AddTotal は読み取ったドキュメント数を1増やす。
func (s *Stats) AddTotal(entity string) {
	s.mu.Lock()
	s.register(entity).Total++
	s.mu.Unlock()
}

// AddMigrated は移行成功数を1増やす。
func (s *Stats) AddMigrated(entity string) {
	s.mu.Lock()
	s.register(entity).Migrated++
	s.mu.Unlock()
}

// AddError は失敗数を1増やす。
func (s *Stats) AddError(entity string) {
	s.mu.Lock()
	s.register(entity).Errors++
	s.mu.Unlock()
}

// Get はエンティティの件数を返す。
func (s *Stats) Get(entity string) EntityStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if es, ok := s.entities[entity]; ok {
		return *es
	}
	return EntityStats{}
}

// Snapshot は全エンティティの件数を登録順にコピーして返す。
func (s *Stats) Snapshot() []EntitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntitySnapshot, 0, len(s.order))
	for _, entity := range s.order {
		out = append(out, EntitySnapshot{Entity: entity, EntityStats: *s.entities[entity]})
	}
	return out
}
