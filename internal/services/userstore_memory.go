package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
)

// MemoryUserStore is a process-local UserStore.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]map[string]any
	now   func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]map[string]any),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryUserStore) Create(_ context.Context, userID string, sections map[string]models.DocumentRecord) (string, error) {
	const op = "UserStore.Create"
	if err := validateUserID(op, userID); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return "", errs.E(errs.KindDuplicateUser, op, "user already exists").WithDetail(userID)
	}
	doc := map[string]any{
		models.FieldUserID:      userID,
		models.FieldLastUpdated: s.now(),
	}
	for name, record := range sections {
		doc[name] = map[string]any(maps.Clone(record))
	}
	s.users[userID] = doc
	return userID, nil
}

func (s *MemoryUserStore) Get(_ context.Context, userID string, fields ...string) (*models.UserRecord, error) {
	const op = "UserStore.Get"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.users[userID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "user not found").WithDetail(userID)
	}

	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if len(fields) > 0 && k != models.FieldUserID && k != models.FieldLastUpdated && !slices.Contains(fields, k) {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			v = maps.Clone(m)
		}
		data[k] = v
	}
	return decodeUserRecord(userID, data), nil
}

func (s *MemoryUserStore) ReplaceSection(_ context.Context, userID, section string, value models.DocumentRecord) (int, error) {
	if err := validateUserID("UserStore.ReplaceSection", userID); err != nil {
		return 0, err
	}
	return s.merge(userID, map[string]any{section: map[string]any(maps.Clone(value))}), nil
}

func (s *MemoryUserStore) MergeFields(_ context.Context, userID string, fields map[string]any) (int, error) {
	if err := validateUserID("UserStore.MergeFields", userID); err != nil {
		return 0, err
	}
	return s.merge(userID, fields), nil
}

func (s *MemoryUserStore) merge(userID string, fields map[string]any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.users[userID]
	if !ok {
		return 0
	}
	for k, v := range fields {
		doc[k] = v
	}
	doc[models.FieldLastUpdated] = s.now()
	return 1
}

func (s *MemoryUserStore) Delete(_ context.Context, userID string) (int, error) {
	if err := validateUserID("UserStore.Delete", userID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0, nil
	}
	delete(s.users, userID)
	return 1, nil
}

func (s *MemoryUserStore) FindByIdentifier(_ context.Context, path, value string) ([]string, error) {
	section, field, ok := strings.Cut(path, ".")
	if !ok {
		return nil, errs.E(errs.KindValidation, "UserStore.FindByIdentifier", "path must be <section>.<field>").WithDetail(path)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, doc := range s.users {
		m, ok := doc[section].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := m[field]; ok && fmt.Sprint(v) == value {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
