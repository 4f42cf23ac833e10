package chat

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// GeneralRoom is the routing label of the always-present broadcast room.
	GeneralRoom = "general"
	// GroupPrefix starts every group identifier.
	GroupPrefix = "group-"
	// KeySeparator joins the two halves of a private conversation key.
	KeySeparator = "-"
)

// DestinationKind classifies a routing label.
type DestinationKind int

// Destination kinds, in classification order.
const (
	DestinationInvalid DestinationKind = iota
	DestinationGeneral
	DestinationGroup
	DestinationPeer
	DestinationConversation
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationGeneral:
		return "general"
	case DestinationGroup:
		return "group"
	case DestinationPeer:
		return "peer"
	case DestinationConversation:
		return "conversation"
	default:
		return "invalid"
	}
}

// Destination is a classified routing label.
type Destination struct {
	Kind  DestinationKind
	Label string
	// Participants holds the peer for DestinationPeer and both halves of the
	// key for DestinationConversation.
	Participants []string
}

// ClassifyDestination applies the routing rules in order: the general room,
// then the group prefix, then a single connection id or an "A-B"
// conversation key. Anything else is DestinationInvalid.
func ClassifyDestination(label string) Destination {
	switch {
	case label == "":
		return Destination{Kind: DestinationInvalid, Label: label}
	case label == GeneralRoom:
		return Destination{Kind: DestinationGeneral, Label: label}
	case strings.HasPrefix(label, GroupPrefix):
		return Destination{Kind: DestinationGroup, Label: label}
	}

	parts := strings.Split(label, KeySeparator)
	switch len(parts) {
	case 1:
		return Destination{Kind: DestinationPeer, Label: label, Participants: parts}
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Destination{Kind: DestinationInvalid, Label: label}
		}
		return Destination{Kind: DestinationConversation, Label: label, Participants: parts}
	default:
		return Destination{Kind: DestinationInvalid, Label: label}
	}
}

// PrivateChatKey derives the conversation key for two connections. The
// smaller identifier always comes first, so both ends compute the same key.
func PrivateChatKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// ChatKey returns the canonical chat a message addressed to label belongs
// to, as seen by sender. A peer id and either order of a conversation key
// name the same private chat. Unroutable labels return "".
func ChatKey(sender, label string) string {
	dest := ClassifyDestination(label)
	switch dest.Kind {
	case DestinationGeneral, DestinationGroup:
		return label
	case DestinationPeer:
		return PrivateChatKey(sender, label)
	case DestinationConversation:
		return PrivateChatKey(dest.Participants[0], dest.Participants[1])
	default:
		return ""
	}
}

// NewConnectionID returns a random identifier that never contains
// KeySeparator.
func NewConnectionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NewGroupID returns a group identifier built from the current time and a
// random suffix.
func NewGroupID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s%d-%s", GroupPrefix, now.UnixMilli(), hex.EncodeToString(id[:4]))
}
