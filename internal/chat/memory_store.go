package chat

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// MemoryStore is an in-process Store. Like the Router it is not safe for
// concurrent use.
type MemoryStore struct {
	names    map[string]string
	groups   map[string]*Group
	authors  map[string]Authorship
	authored map[string]map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		names:    make(map[string]string),
		groups:   make(map[string]*Group),
		authors:  make(map[string]Authorship),
		authored: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) SetName(_ context.Context, connID, name string) error {
	s.names[connID] = name
	return nil
}

func (s *MemoryStore) Name(_ context.Context, connID string) (string, error) {
	return s.names[connID], nil
}

func (s *MemoryStore) RemoveName(_ context.Context, connID string) error {
	delete(s.names, connID)
	return nil
}

func (s *MemoryStore) Names(_ context.Context) (map[string]string, error) {
	return maps.Clone(s.names), nil
}

func (s *MemoryStore) SaveGroup(_ context.Context, g *Group) error {
	s.groups[g.ID] = g.Clone()
	return nil
}

func (s *MemoryStore) Group(_ context.Context, id string) (*Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, id string) error {
	delete(s.groups, id)
	return nil
}

// Groups returns every group ordered by identifier.
func (s *MemoryStore) Groups(_ context.Context) ([]*Group, error) {
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	slices.SortFunc(out, func(a, b *Group) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) ClaimMessage(_ context.Context, messageID string, a Authorship) (bool, error) {
	if existing, ok := s.authors[messageID]; ok {
		return existing == a && !a.Retired(), nil
	}
	s.authors[messageID] = a
	set, ok := s.authored[a.ConnID]
	if !ok {
		set = make(map[string]struct{})
		s.authored[a.ConnID] = set
	}
	set[messageID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) MessageAuthor(_ context.Context, messageID string) (Authorship, error) {
	a, ok := s.authors[messageID]
	if !ok {
		return Authorship{}, ErrMessageNotFound
	}
	return a, nil
}

func (s *MemoryStore) RetireAuthor(_ context.Context, connID string) error {
	for id := range s.authored[connID] {
		a := s.authors[id]
		a.ConnID = ""
		s.authors[id] = a
	}
	delete(s.authored, connID)
	return nil
}
