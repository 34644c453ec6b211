package auth

import (
	"context"
	"sync"
)

var _ UserRepository = (*MemoryUsers)(nil)

var memoryTxKey = &contextKey{"memory_tx"}

// MemoryUsers is an in-process UserRepository. Transactions are serialized
// and roll back by restoring a snapshot, so writes made outside a
// transaction while one is running can be lost on rollback.
type MemoryUsers struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUsers returns an empty repository
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: map[string]*User{}}
}

func (m *MemoryUsers) CreateUser(_ context.Context, user *User) (string, error) {
	if user == nil || user.ID == "" {
		return "", withDetail(ErrBadInput, "user id is required", nil, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return "", withDetail(ErrUserAlreadyExists, "", nil, map[string]any{"column": string(ColumnID)})
	}
	if col, taken := m.conflict(user, ""); taken {
		return "", withDetail(ErrUserAlreadyExists, "", nil, map[string]any{"column": string(col)})
	}

	m.users[user.ID] = user.Clone()
	return user.ID, nil
}

func (m *MemoryUsers) GetUserByColumn(_ context.Context, column Column, value string) (*User, error) {
	if !column.IsLookup() {
		return nil, withDetail(ErrBadInput, "column is not a lookup column", nil, map[string]any{
			"column": string(column),
		})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if v, ok := lookupValue(u, column); ok && v == value {
			return u.Clone(), nil
		}
	}
	return nil, withDetail(ErrUserNotFound, "", nil, map[string]any{
		"column": string(column),
	})
}

func (m *MemoryUsers) UpdateUserByUserID(_ context.Context, user *User, fields []Column, id string) (int64, error) {
	if err := checkWritable(fields); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[id]
	if !ok {
		return 0, nil
	}

	next := stored.Clone()
	for _, f := range fields {
		copyColumn(next, user, f)
	}
	if col, taken := m.conflict(next, id); taken {
		return 0, withDetail(ErrUserAlreadyExists, "", nil, map[string]any{"column": string(col)})
	}

	m.users[id] = next
	return 1, nil
}

func (m *MemoryUsers) DeleteUserByUserID(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

// RunInTransaction restores the previous state when fn fails. Nested calls
// join the outer transaction.
func (m *MemoryUsers) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(context.WithValue(ctx, memoryTxKey, true)); err != nil {
		m.mu.Lock()
		m.users = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// Len returns the number of stored users
func (m *MemoryUsers) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *MemoryUsers) snapshot() map[string]*User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*User, len(m.users))
	for id, u := range m.users {
		out[id] = u.Clone()
	}
	return out
}

func (m *MemoryUsers) conflict(user *User, skipID string) (Column, bool) {
	for id, u := range m.users {
		if id == skipID {
			continue
		}
		if u.Username == user.Username {
			return ColumnUsername, true
		}
		if u.Email == user.Email {
			return ColumnEmail, true
		}
	}
	return "", false
}

func checkWritable(fields []Column) error {
	if len(fields) == 0 {
		return withDetail(ErrBadInput, "no fields to update", nil, nil)
	}
	for _, f := range fields {
		if !f.IsWritable() {
			return withDetail(ErrBadInput, "column is not writable", nil, map[string]any{
				"column": string(f),
			})
		}
	}
	return nil
}

func lookupValue(u *User, column Column) (string, bool) {
	switch column {
	case ColumnID:
		return u.ID, true
	case ColumnUsername:
		return u.Username, true
	case ColumnEmail:
		return u.Email, true
	case ColumnActivationKey:
		return deref(u.ActivationKey)
	case ColumnResetKey:
		return deref(u.ResetKey)
	case ColumnLoginID:
		return deref(u.LoginID)
	default:
		return "", false
	}
}

func copyColumn(dst, src *User, column Column) {
	switch column {
	case ColumnUsername:
		dst.Username = src.Username
	case ColumnEmail:
		dst.Email = src.Email
	case ColumnPasswordHash:
		dst.PasswordHash = src.PasswordHash
	case ColumnRole:
		dst.Role = src.Role
	case ColumnAccountStatus:
		dst.AccountStatus = src.AccountStatus
	case ColumnActivationKey:
		dst.ActivationKey = cloneString(src.ActivationKey)
	case ColumnResetKey:
		dst.ResetKey = cloneString(src.ResetKey)
	case ColumnResetRequestedAt:
		if src.ResetRequestedAt == nil {
			dst.ResetRequestedAt = nil
		} else {
			dst.ResetRequestedAt = int64Ptr(*src.ResetRequestedAt)
		}
	case ColumnLoginID:
		dst.LoginID = cloneString(src.LoginID)
	case ColumnLoginIDValidatorHash:
		dst.LoginIDValidatorHash = cloneString(src.LoginIDValidatorHash)
	case ColumnLoginData:
		dst.LoginData = cloneString(src.LoginData)
	}
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}
