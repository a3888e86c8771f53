// Package repositorytest はテスト用のインメモリIdentityRepositoryを提供する。
// usersテーブルの一意インデックス（username、(email, login_method)）を再現する。
package repositorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// MemoryIdentityRepo はゴルーチンセーフなインメモリ実装。
type MemoryIdentityRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.Identity

	// Err が設定されている場合、すべての操作がこのエラーを返す。
	Err error
	// CreateHook はCreateの直前に呼ばれる。エラーを返すとCreateは失敗する。
	CreateHook func(identity *model.Identity) error
	// CreateCalls はCreateの呼び出し回数。
	CreateCalls int
}

// NewMemoryIdentityRepo はMemoryIdentityRepoを生成する。
func NewMemoryIdentityRepo() *MemoryIdentityRepo {
	return &MemoryIdentityRepo{rows: make(map[int64]*model.Identity)}
}

// Insert は一意制約を無視して行を直接挿入する。外部サービスによる書き込みの再現に使う。
func (m *MemoryIdentityRepo) Insert(identity *model.Identity) *model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	cp := *identity
	cp.ID = m.nextID
	m.rows[cp.ID] = &cp
	out := cp
	return &out
}

// Len は保存されている行数を返す。
func (m *MemoryIdentityRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Get はIDで行のコピーを返す。
func (m *MemoryIdentityRepo) Get(id int64) *model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

// FindByID は指定IDのidentityを取得する。
func (m *MemoryIdentityRepo) FindByID(_ context.Context, id int64, vis repository.Visibility) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	row, ok := m.rows[id]
	if !ok || !visible(row, vis) {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

// FindByEmailAndLoginMethod はemailとlogin_methodでidentityをid昇順に取得する。
func (m *MemoryIdentityRepo) FindByEmailAndLoginMethod(_ context.Context, email string, method model.LoginMethod, vis repository.Visibility) ([]*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []*model.Identity
	for _, row := range m.rows {
		if row.Email == email && row.LoginMethod == method && visible(row, vis) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByUsername はusernameでidentityを検索する。
func (m *MemoryIdentityRepo) FindByUsername(_ context.Context, username string, vis repository.Visibility) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	for _, row := range m.rows {
		if row.Username == username && visible(row, vis) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

// Create は一意制約を検査した上で行を挿入する。
func (m *MemoryIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.Err != nil {
		return m.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.CreateHook != nil {
		if err := m.CreateHook(identity); err != nil {
			return err
		}
	}

	for _, row := range m.rows {
		if row.Username == identity.Username {
			return &model.UniquenessError{Key: model.UniqueKeyUsername}
		}
		if row.Email == identity.Email && row.LoginMethod == identity.LoginMethod {
			return &model.UniquenessError{Key: model.UniqueKeyEmailLoginMethod}
		}
	}

	now := time.Now()
	m.nextID++
	identity.ID = m.nextID
	identity.DateJoined = now
	identity.CreatedAt = now
	identity.UpdatedAt = now

	cp := *identity
	m.rows[cp.ID] = &cp
	return nil
}

// UpdateLastLogin はlast_loginのみを更新する。
func (m *MemoryIdentityRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: id=%d", model.ErrIdentityNotFound, id)
	}
	row.LastLogin = &at
	return nil
}

// UpdatePassword はpasswordのみを更新する。
func (m *MemoryIdentityRepo) UpdatePassword(_ context.Context, id int64, encoded string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: id=%d", model.ErrIdentityNotFound, id)
	}
	row.Password = encoded
	return nil
}

// CompareAndSwapPassword は現在値がoldと一致する場合のみpasswordを更新する。
func (m *MemoryIdentityRepo) CompareAndSwapPassword(_ context.Context, id int64, old, encoded string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	row, ok := m.rows[id]
	if !ok || row.Password != old {
		return false, nil
	}
	row.Password = encoded
	return true, nil
}

func visible(row *model.Identity, vis repository.Visibility) bool {
	return vis == repository.IncludeDeleted || row.DeletedAt == nil
}

var _ repository.IdentityRepository = (*MemoryIdentityRepo)(nil)
