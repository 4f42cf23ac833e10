package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidSettings is returned when a settings update cannot be decoded,
// including when it names a field Settings does not define.
var ErrInvalidSettings = errors.New("invalid settings update")

// Settings is the process-wide chat configuration shown to every client.
//
//   - ChatEnabled: when false, message sends, media, group messages, edits,
//     typing indicators and group creation are dropped.
//   - GeneralOnly: when true, only the general room is usable. Private and
//     group traffic and group creation are dropped.
//   - AllowGroupCreation: when false, createGroup is dropped.
type Settings struct {
	ChatEnabled        bool `json:"chatEnabled"`
	GeneralOnly        bool `json:"generalOnly"`
	AllowGroupCreation bool `json:"allowGroupCreation"`
}

// DefaultSettings returns the settings a fresh process starts with.
func DefaultSettings() Settings {
	return Settings{
		ChatEnabled:        true,
		GeneralOnly:        false,
		AllowGroupCreation: true,
	}
}

// SettingsUpdate is a partial Settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	ChatEnabled        *bool `json:"chatEnabled,omitempty"`
	GeneralOnly        *bool `json:"generalOnly,omitempty"`
	AllowGroupCreation *bool `json:"allowGroupCreation,omitempty"`
}

// DecodeSettingsUpdate strictly decodes a partial settings object.
func DecodeSettingsUpdate(data []byte) (SettingsUpdate, error) {
	var update SettingsUpdate
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		return SettingsUpdate{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return SettingsUpdate{}, fmt.Errorf("%w: trailing data", ErrInvalidSettings)
	}
	return update, nil
}

// Apply returns s with the non-nil fields of u applied.
func (s Settings) Apply(u SettingsUpdate) Settings {
	if u.ChatEnabled != nil {
		s.ChatEnabled = *u.ChatEnabled
	}
	if u.GeneralOnly != nil {
		s.GeneralOnly = *u.GeneralOnly
	}
	if u.AllowGroupCreation != nil {
		s.AllowGroupCreation = *u.AllowGroupCreation
	}
	return s
}

func (s Settings) canCreateGroup() bool {
	return s.ChatEnabled && !s.GeneralOnly && s.AllowGroupCreation
}
