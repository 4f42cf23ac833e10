package chat

import (
	"context"
	"errors"
	"slices"
)

var (
	// ErrGroupNotFound is returned by Store.Group for unknown identifiers.
	ErrGroupNotFound = errors.New("group not found")
	// ErrMessageNotFound is returned by Store.MessageAuthor when no author
	// has been recorded for a message.
	ErrMessageNotFound = errors.New("message not found")
)

// Group is an ad-hoc conversation created by a host connection.
type Group struct {
	ID       string   `json:"id"`
	Host     string   `json:"host"`
	HostName string   `json:"hostName"`
	Name     string   `json:"name"`
	Open     bool     `json:"open"`
	Members  []string `json:"members"`
}

// HasMember reports whether connID belongs to the group.
func (g *Group) HasMember(connID string) bool {
	return slices.Contains(g.Members, connID)
}

// AddMember adds connID unless it is already present and reports whether the
// member list changed.
func (g *Group) AddMember(connID string) bool {
	if g.HasMember(connID) {
		return false
	}
	g.Members = append(g.Members, connID)
	return true
}

// RemoveMember removes connID and reports whether the member list changed.
func (g *Group) RemoveMember(connID string) bool {
	i := slices.Index(g.Members, connID)
	if i < 0 {
		return false
	}
	g.Members = slices.Delete(g.Members, i, i+1)
	return true
}

// Clone returns a deep copy of g.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	if c.Members == nil {
		c.Members = []string{}
	}
	return &c
}

// Authorship records who sent a message and the chat it was sent to. Chat
// is the canonical label returned by ChatKey. A retired record has an empty
// ConnID and matches no connection.
type Authorship struct {
	ConnID string `json:"connId"`
	Chat   string `json:"chat"`
}

// Retired reports whether the author has disconnected.
func (a Authorship) Retired() bool {
	return a.ConnID == ""
}

// Store holds the presence table, the group records and the transient
// message authorship index used to authorize edits and deletes.
//
// Implementations return copies; mutating a returned Group has no effect
// until it is passed back to SaveGroup.
type Store interface {
	SetName(ctx context.Context, connID, name string) error
	// Name returns the display name bound to connID, or "" if none.
	Name(ctx context.Context, connID string) (string, error)
	RemoveName(ctx context.Context, connID string) error
	Names(ctx context.Context) (map[string]string, error)

	SaveGroup(ctx context.Context, g *Group) error
	Group(ctx context.Context, id string) (*Group, error)
	DeleteGroup(ctx context.Context, id string) error
	Groups(ctx context.Context) ([]*Group, error)

	// ClaimMessage records a as the authorship of messageID. It returns
	// false when messageID is already recorded with a different author or
	// chat, including a retired one.
	ClaimMessage(ctx context.Context, messageID string, a Authorship) (bool, error)
	MessageAuthor(ctx context.Context, messageID string) (Authorship, error)
	// RetireAuthor keeps every record owned by connID but clears its
	// ConnID, so the ids can never be claimed, edited or deleted again.
	RetireAuthor(ctx context.Context, connID string) error
}
