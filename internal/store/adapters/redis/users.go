package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// userRecord persiste el hash que domain.User oculta en JSON.
type userRecord struct {
	domain.User
	PasswordHash *string `json:"passwordHash,omitempty"`
}

func encodeUser(u domain.User) ([]byte, error) {
	return json.Marshal(userRecord{User: u, PasswordHash: u.PasswordHash})
}

func decodeUser(raw string) (*domain.User, error) {
	var r userRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: user: %v", store.ErrInvalidRecord, err)
	}
	u := r.User
	u.PasswordHash = r.PasswordHash
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &u, nil
}

// ─── Users ───

func (a *Adapter) CreateUser(ctx context.Context, tenantID string, in domain.NewUser) (*domain.User, error) {
	u, err := store.BuildUser(a.cfg.Hasher, a.now(), tenantID, in)
	if err != nil {
		return nil, err
	}
	raw, err := encodeUser(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	hasUsername := "0"
	if u.Username != "" {
		hasUsername = "1"
	}
	res, err := createUserLua.Run(ctx, a.rdb,
		[]string{a.emailKey(tenantID, u.Email), a.usernameKey(tenantID, u.Username), a.userKey(tenantID, u.ID), a.usersKey(tenantID)},
		u.ID, raw, u.CreatedAt.UnixMicro(), hasUsername).Text()
	if err != nil {
		return nil, fmt.Errorf("redis: create user: %w", err)
	}
	switch res {
	case "email":
		return nil, store.ErrEmailInUse
	case "username":
		return nil, store.ErrUsernameInUse
	}
	return &u, nil
}

func (a *Adapter) GetUser(ctx context.Context, tenantID, id string) (*domain.User, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := a.rdb.Get(ctx, a.userKey(tenantID, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get user: %w", err)
	}
	return decodeUser(raw)
}

// byIndex resuelve un índice secundario → usuario.
func (a *Adapter) byIndex(ctx context.Context, tenantID, idxKey string) (*domain.User, error) {
	id, err := a.rdb.Get(ctx, idxKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: lookup index: %w", err)
	}
	return a.GetUser(ctx, tenantID, id)
}

func (a *Adapter) GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return a.byIndex(ctx, tenantID, a.emailKey(tenantID, email))
}

func (a *Adapter) GetUserByUsername(ctx context.Context, tenantID, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, nil
	}
	return a.byIndex(ctx, tenantID, a.usernameKey(tenantID, username))
}

// allUsers carga los usuarios del tenant en orden de alta.
func (a *Adapter) allUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	ids, err := a.rdb.ZRange(ctx, a.usersKey(tenantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list users: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = a.userKey(tenantID, id)
	}
	vals, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list users: %w", err)
	}
	out := make([]domain.User, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		u, err := decodeUser(s)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// GetUserByPhone recorre el tenant; el teléfono no es único ni indexado.
func (a *Adapter) GetUserByPhone(ctx context.Context, tenantID, phone string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	users, err := a.allUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Phone == phone {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (a *Adapter) ListUsers(ctx context.Context, tenantID string, opts domain.ListOptions) ([]domain.User, error) {
	opts = opts.Normalize()
	users, err := a.allUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	matched := []domain.User{}
	for i := range users {
		if users[i].Matches(opts.Search) {
			matched = append(matched, users[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if opts.Offset >= len(matched) {
		return []domain.User{}, nil
	}
	end := min(opts.Offset+opts.Limit, len(matched))
	return matched[opts.Offset:end], nil
}

const maxTxRetries = 8

// UpdateUser aplica el patch bajo WATCH del usuario y del username nuevo.
func (a *Adapter) UpdateUser(ctx context.Context, tenantID, id string, patch domain.UserPatch) (*domain.User, error) {
	if id == "" {
		return nil, nil
	}
	uk := a.userKey(tenantID, id)
	watch := []string{uk}
	if patch.Username != nil && strings.TrimSpace(*patch.Username) != "" {
		watch = append(watch, a.usernameKey(tenantID, *patch.Username))
	}

	var out *domain.User
	txf := func(tx *redis.Tx) error {
		out = nil
		raw, err := tx.Get(ctx, uk).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		cur, err := decodeUser(raw)
		if err != nil {
			return err
		}
		next := cur.Clone()
		patch.Apply(&next, a.now())

		oldName, newName := strings.ToLower(cur.Username), strings.ToLower(next.Username)
		if newName != "" && newName != oldName {
			owner, err := tx.Get(ctx, a.usernameKey(tenantID, newName)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != id {
				return store.ErrUsernameInUse
			}
		}
		enc, err := encodeUser(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, uk, enc, 0)
			if newName != oldName {
				if oldName != "" {
					p.Del(ctx, a.usernameKey(tenantID, oldName))
				}
				if newName != "" {
					p.Set(ctx, a.usernameKey(tenantID, newName), id, 0)
				}
			}
			return nil
		})
		if err == nil {
			out = &next
		}
		return err
	}

	for range maxTxRetries {
		err := a.rdb.Watch(ctx, txf, watch...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, store.ErrUsernameInUse) || errors.Is(err, store.ErrInvalidRecord) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("redis: update user: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis: update user: %w", redis.TxFailedErr)
}

func (a *Adapter) DeleteUser(ctx context.Context, tenantID, id string) error {
	u, err := a.GetUser(ctx, tenantID, id)
	if err != nil || u == nil {
		return err
	}
	if _, err := a.DeleteUserSessions(ctx, tenantID, id); err != nil {
		return err
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, a.userKey(tenantID, id), a.emailKey(tenantID, u.Email))
		if u.Username != "" {
			p.Del(ctx, a.usernameKey(tenantID, u.Username))
		}
		p.ZRem(ctx, a.usersKey(tenantID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete user: %w", err)
	}
	return nil
}

func (a *Adapter) VerifyPassword(ctx context.Context, tenantID, identifier, plain string) (*domain.User, error) {
	u, err := a.GetUserByEmail(ctx, tenantID, identifier)
	if err == nil && u == nil {
		u, err = a.GetUserByUsername(ctx, tenantID, identifier)
	}
	if err != nil {
		return nil, err
	}
	return store.CheckPassword(a.cfg.Hasher, u, plain), nil
}
