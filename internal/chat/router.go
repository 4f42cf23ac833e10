package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// timestampLayout matches the millisecond ISO-8601 form clients expect.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Router turns inbound client events into outbound events. Every handler
// completes without returning an error: invalid, unauthorized or unroutable
// requests are logged and dropped.
type Router struct {
	store    Store
	emitter  Emitter
	settings Settings
	now      func() time.Time
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithClock overrides the clock used for timestamps and group identifiers.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// WithSettings sets the initial chat settings.
func WithSettings(s Settings) RouterOption {
	return func(r *Router) {
		r.settings = s
	}
}

// NewRouter creates a Router over store that emits through emitter.
func NewRouter(store Store, emitter Emitter, opts ...RouterOption) *Router {
	r := &Router{
		store:    store,
		emitter:  emitter,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settings returns the current chat settings.
func (r *Router) Settings() Settings {
	return r.settings
}

func (r *Router) timestamp() string {
	return r.now().UTC().Format(timestampLayout)
}

func (r *Router) name(ctx context.Context, connID string) string {
	name, err := r.store.Name(ctx, connID)
	if err != nil {
		log.Printf("Failed to look up name for %s: %v", connID, err)
	}
	return name
}

// lookupGroup returns nil when the group does not exist or cannot be read.
func (r *Router) lookupGroup(ctx context.Context, id string) *Group {
	g, err := r.store.Group(ctx, id)
	if errors.Is(err, ErrGroupNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("Failed to load group %s: %v", id, err)
		return nil
	}
	return g
}

// Dispatch decodes data for event and runs the matching handler.
func (r *Router) Dispatch(ctx context.Context, connID, event string, data json.RawMessage) {
	switch event {
	case EventRegister:
		var name string
		if decode(connID, event, data, &name) {
			r.Register(ctx, connID, name)
		}
	case EventUpdateConfig:
		update, err := DecodeSettingsUpdate(data)
		if err != nil {
			log.Printf("Rejected config update from %s: %v", connID, err)
			return
		}
		r.UpdateConfig(ctx, connID, update)
	case EventSendMessage:
		var req SendMessageRequest
		if decode(connID, event, data, &req) {
			r.SendMessage(ctx, connID, req)
		}
	case EventSendMedia:
		var req SendMediaRequest
		if decode(connID, event, data, &req) {
			r.SendMedia(ctx, connID, req)
		}
	case EventSendGroupMessage:
		var req SendGroupMessageRequest
		if decode(connID, event, data, &req) {
			r.SendGroupMessage(ctx, connID, req)
		}
	case EventDeleteMessage:
		var req DeleteMessageRequest
		if decode(connID, event, data, &req) {
			r.DeleteMessage(ctx, connID, req)
		}
	case EventEditMessage:
		var req EditMessageRequest
		if decode(connID, event, data, &req) {
			r.EditMessage(ctx, connID, req)
		}
	case EventTyping:
		var req TypingRequest
		if decode(connID, event, data, &req) {
			r.Typing(ctx, connID, req)
		}
	case EventStopTyping:
		var req TypingRequest
		if decode(connID, event, data, &req) {
			r.StopTyping(ctx, connID, req)
		}
	case EventCreateGroup:
		var req CreateGroupRequest
		if decode(connID, event, data, &req) {
			r.CreateGroup(ctx, connID, req)
		}
	case EventRequestJoinGroup:
		var req RequestJoinGroupRequest
		if decode(connID, event, data, &req) {
			r.RequestJoinGroup(ctx, connID, req)
		}
	case EventAcceptJoinGroup:
		var req AcceptJoinGroupRequest
		if decode(connID, event, data, &req) {
			r.AcceptJoinGroup(ctx, connID, req)
		}
	default:
		log.Printf("Ignoring unknown event %q from %s", event, connID)
	}
}

func decode(connID, event string, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		log.Printf("Ignoring %s from %s: missing payload", event, connID)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("Ignoring %s from %s: invalid payload: %v", event, connID, err)
		return false
	}
	return true
}

// Connect greets a new connection with its identifier, the existing groups
// and the current settings.
func (r *Router) Connect(ctx context.Context, connID string) {
	groups, err := r.store.Groups(ctx)
	if err != nil {
		log.Printf("Failed to list groups for %s: %v", connID, err)
		groups = []*Group{}
	}
	r.emitter.Emit(connID, EventConnected, Connected{ID: connID})
	r.emitter.Emit(connID, EventExistingGroups, groups)
	r.emitter.Emit(connID, EventConfigChanged, r.settings)
}

// Register binds name to connID and broadcasts the presence table. Empty and
// duplicate names are accepted.
func (r *Router) Register(ctx context.Context, connID, name string) {
	if err := r.store.SetName(ctx, connID, name); err != nil {
		log.Printf("Failed to register %s: %v", connID, err)
		return
	}
	r.broadcastUsers(ctx)
}

func (r *Router) broadcastUsers(ctx context.Context) {
	names, err := r.store.Names(ctx)
	if err != nil {
		log.Printf("Failed to list users: %v", err)
		return
	}
	r.emitter.Broadcast(EventUpdateUsers, names)
}

// UpdateConfig applies a partial settings update and broadcasts the result.
func (r *Router) UpdateConfig(_ context.Context, connID string, update SettingsUpdate) {
	r.settings = r.settings.Apply(update)
	log.Printf("Config updated by %s: %+v", connID, r.settings)
	r.emitter.Broadcast(EventConfigChanged, r.settings)
}

// SetChatEnabled is the admin toggle for Settings.ChatEnabled.
func (r *Router) SetChatEnabled(ctx context.Context, enabled bool) {
	r.UpdateConfig(ctx, "admin", SettingsUpdate{ChatEnabled: &enabled})
}

// claim records sender as the author of id in chat. Messages without an id
// are delivered but can never be edited or deleted.
func (r *Router) claim(ctx context.Context, id MessageID, sender, chat string) bool {
	if id == "" {
		return true
	}
	ok, err := r.store.ClaimMessage(ctx, string(id), Authorship{ConnID: sender, Chat: chat})
	if err != nil {
		log.Printf("Failed to record author of message %s: %v", id, err)
		return false
	}
	if !ok {
		log.Printf("Dropping message %s from %s: id already used", id, sender)
	}
	return ok
}

// isAuthor reports whether connID sent message id to the chat named by to.
func (r *Router) isAuthor(ctx context.Context, id MessageID, connID, to string) bool {
	if id == "" {
		return false
	}
	a, err := r.store.MessageAuthor(ctx, string(id))
	if err != nil {
		if !errors.Is(err, ErrMessageNotFound) {
			log.Printf("Failed to look up author of message %s: %v", id, err)
		}
		return false
	}
	return !a.Retired() && a.ConnID == connID && a.Chat == ChatKey(connID, to)
}

// SendMessage routes a text message to the general room or to one peer.
func (r *Router) SendMessage(ctx context.Context, sender string, req SendMessageRequest) {
	r.deliver(ctx, sender, req.To, ChatMessage{
		ID:      req.ID,
		Message: req.Message,
		Type:    TypeText,
	})
}

// SendMedia routes an uploaded file reference like SendMessage.
func (r *Router) SendMedia(ctx context.Context, sender string, req SendMediaRequest) {
	r.deliver(ctx, sender, req.To, ChatMessage{
		ID:       req.ID,
		Message:  req.FileURL,
		Type:     req.FileType,
		Filename: req.Filename,
	})
}

// deliver broadcasts msg to the general room, or sends it to the peer with a
// separate echo to the sender so the sender never sees it twice.
func (r *Router) deliver(ctx context.Context, sender, to string, msg ChatMessage) {
	if !r.settings.ChatEnabled {
		log.Printf("Dropping message from %s: chat is disabled", sender)
		return
	}

	dest := ClassifyDestination(to)
	switch dest.Kind {
	case DestinationGeneral:
	case DestinationPeer:
		if r.settings.GeneralOnly {
			log.Printf("Dropping private message from %s: general only", sender)
			return
		}
	default:
		log.Printf("Dropping message from %s: unroutable destination %q", sender, to)
		return
	}

	if !r.claim(ctx, msg.ID, sender, ChatKey(sender, to)) {
		return
	}

	msg.From = r.name(ctx, sender)
	msg.FromSocketID = sender
	msg.Timestamp = r.timestamp()

	if dest.Kind == DestinationGeneral {
		r.emitter.Broadcast(EventReceiveGeneralMessage, msg)
		return
	}

	msg.To = to
	r.emitter.Emit(to, EventReceivePrivateMessage, msg)
	r.emitter.Emit(sender, EventPrivateMessageSent, msg)
}

// SendGroupMessage fans a message out to every member of a group, the sender
// included. Non-members are ignored.
func (r *Router) SendGroupMessage(ctx context.Context, sender string, req SendGroupMessageRequest) {
	if !r.settings.ChatEnabled || r.settings.GeneralOnly {
		log.Printf("Dropping group message from %s: disabled by config", sender)
		return
	}
	g := r.lookupGroup(ctx, req.GroupID)
	if g == nil {
		log.Printf("Dropping group message from %s: unknown group %q", sender, req.GroupID)
		return
	}
	if !g.HasMember(sender) {
		log.Printf("Dropping group message from %s: not a member of %s", sender, g.ID)
		return
	}
	if !r.claim(ctx, req.ID, sender, g.ID) {
		return
	}

	msgType := req.Type
	if msgType == "" {
		msgType = TypeText
	}
	msg := ChatMessage{
		ID:           req.ID,
		From:         r.name(ctx, sender),
		FromSocketID: sender,
		GroupID:      g.ID,
		Message:      req.Message,
		Type:         msgType,
		Timestamp:    r.timestamp(),
	}
	for _, member := range g.Members {
		r.emitter.Emit(member, EventReceiveGroupMessage, msg)
	}
}

// DeleteMessage propagates a delete of one of the sender's own messages.
func (r *Router) DeleteMessage(ctx context.Context, sender string, req DeleteMessageRequest) {
	if !r.isAuthor(ctx, req.ID, sender, req.To) {
		log.Printf("Rejected delete of message %s by %s in %q: not the author", req.ID, sender, req.To)
		return
	}
	r.fanOut(ctx, sender, req.To, false, EventMessageDeleted, MessageDeleted{ID: req.ID, Chat: req.To})
}

// EditMessage propagates an edit of one of the sender's own messages.
func (r *Router) EditMessage(ctx context.Context, sender string, req EditMessageRequest) {
	if !r.settings.ChatEnabled {
		log.Printf("Dropping edit from %s: chat is disabled", sender)
		return
	}
	if !r.isAuthor(ctx, req.ID, sender, req.To) {
		log.Printf("Rejected edit of message %s by %s in %q: not the author", req.ID, sender, req.To)
		return
	}
	r.fanOut(ctx, sender, req.To, false, EventMessageEdited, MessageEdited{
		ID:         req.ID,
		From:       r.name(ctx, sender),
		NewMessage: req.NewMessage,
		Edited:     true,
		Type:       TypeText,
		Timestamp:  r.timestamp(),
		Chat:       req.To,
	})
}

// Typing shows the sender's typing indicator to the other participants.
func (r *Router) Typing(ctx context.Context, sender string, req TypingRequest) {
	if !r.settings.ChatEnabled {
		return
	}
	r.typing(ctx, sender, req, EventDisplayTyping)
}

// StopTyping clears the sender's typing indicator. It is honored even while
// chat is disabled so indicators never get stuck.
func (r *Router) StopTyping(ctx context.Context, sender string, req TypingRequest) {
	r.typing(ctx, sender, req, EventRemoveTyping)
}

func (r *Router) typing(ctx context.Context, sender string, req TypingRequest, event string) {
	dest := ClassifyDestination(req.To)
	conversation := req.Conversation
	switch dest.Kind {
	case DestinationGeneral, DestinationGroup:
		conversation = req.To
	case DestinationPeer:
		if conversation == "" {
			conversation = PrivateChatKey(sender, req.To)
		}
	case DestinationConversation:
		conversation = req.To
	}
	if dest.Kind != DestinationGeneral && r.settings.GeneralOnly && event == EventDisplayTyping {
		return
	}
	r.fanOut(ctx, sender, req.To, true, event, TypingNotice{
		From:         r.name(ctx, sender),
		Conversation: conversation,
		SocketID:     sender,
	})
}

// fanOut delivers payload to the members of the destination named by label.
// Senders must belong to the group or conversation they target.
func (r *Router) fanOut(ctx context.Context, sender, label string, excludeSender bool, event string, payload any) {
	dest := ClassifyDestination(label)
	switch dest.Kind {
	case DestinationGeneral:
		if excludeSender {
			r.emitter.BroadcastExcept(sender, event, payload)
		} else {
			r.emitter.Broadcast(event, payload)
		}
		return

	case DestinationGroup:
		g := r.lookupGroup(ctx, label)
		if g == nil {
			log.Printf("Dropping %s from %s: unknown group %q", event, sender, label)
			return
		}
		if !g.HasMember(sender) {
			log.Printf("Dropping %s from %s: not a member of %s", event, sender, g.ID)
			return
		}
		r.emitEach(sender, g.Members, excludeSender, event, payload)
		return

	case DestinationPeer:
		r.emitEach(sender, []string{label, sender}, excludeSender, event, payload)
		return

	case DestinationConversation:
		a, b := dest.Participants[0], dest.Participants[1]
		if sender != a && sender != b {
			log.Printf("Dropping %s from %s: not a participant of %s", event, sender, label)
			return
		}
		r.emitEach(sender, []string{a, b}, excludeSender, event, payload)
		return

	default:
		log.Printf("Dropping %s from %s: unroutable destination %q", event, sender, label)
	}
}

func (r *Router) emitEach(sender string, targets []string, excludeSender bool, event string, payload any) {
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		if excludeSender && target == sender {
			continue
		}
		r.emitter.Emit(target, event, payload)
	}
}

// CreateGroup makes the sender host and sole member of a new group and
// announces it to every connection.
func (r *Router) CreateGroup(ctx context.Context, sender string, req CreateGroupRequest) {
	if !r.settings.canCreateGroup() {
		log.Printf("Dropping group creation by %s: disabled by config", sender)
		return
	}

	id := NewGroupID(r.now())
	for r.lookupGroup(ctx, id) != nil {
		id = NewGroupID(r.now())
	}
	g := &Group{
		ID:       id,
		Host:     sender,
		HostName: r.name(ctx, sender),
		Name:     req.GroupName,
		Open:     req.Open,
		Members:  []string{sender},
	}
	if err := r.store.SaveGroup(ctx, g); err != nil {
		log.Printf("Failed to create group for %s: %v", sender, err)
		return
	}
	log.Printf("Group %s (%q) created by %s", g.ID, g.Name, sender)
	r.emitter.Broadcast(EventGroupCreated, g)
}

// RequestJoinGroup adds the sender to an open group immediately, or forwards
// a join request to the host of a closed group.
func (r *Router) RequestJoinGroup(ctx context.Context, sender string, req RequestJoinGroupRequest) {
	g := r.lookupGroup(ctx, req.GroupID)
	if g == nil {
		log.Printf("Dropping join request from %s: unknown group %q", sender, req.GroupID)
		return
	}

	if g.Open {
		r.admit(ctx, g, sender)
		return
	}

	if g.HasMember(sender) {
		r.emitter.Emit(sender, EventJoinedGroup, g)
		return
	}
	r.emitter.Emit(g.Host, EventJoinGroupRequest, JoinGroupRequest{
		GroupID:       g.ID,
		RequesterID:   sender,
		RequesterName: r.name(ctx, sender),
	})
}

// AcceptJoinGroup lets the host admit a requester to a closed group.
func (r *Router) AcceptJoinGroup(ctx context.Context, sender string, req AcceptJoinGroupRequest) {
	g := r.lookupGroup(ctx, req.GroupID)
	if g == nil {
		log.Printf("Dropping join accept from %s: unknown group %q", sender, req.GroupID)
		return
	}
	if g.Host != sender {
		log.Printf("Rejected join accept for %s by %s: not the host", g.ID, sender)
		return
	}
	if !r.emitter.Connected(req.RequesterID) {
		log.Printf("Dropping join accept for %s: requester %q is not connected", g.ID, req.RequesterID)
		return
	}
	r.admit(ctx, g, req.RequesterID)
}

func (r *Router) admit(ctx context.Context, g *Group, connID string) {
	if g.AddMember(connID) {
		if err := r.store.SaveGroup(ctx, g); err != nil {
			log.Printf("Failed to add %s to group %s: %v", connID, g.ID, err)
			return
		}
	}
	r.emitter.Emit(connID, EventJoinedGroup, g)
	r.emitter.Broadcast(EventGroupUpdated, g)
}

// Disconnect removes connID's name and group memberships and retires its
// authorship records. Groups it hosted, and groups left with
// no members, are deleted.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	if err := r.store.RemoveName(ctx, connID); err != nil {
		log.Printf("Failed to remove name of %s: %v", connID, err)
	}
	r.broadcastUsers(ctx)

	if err := r.store.RetireAuthor(ctx, connID); err != nil {
		log.Printf("Failed to retire messages of %s: %v", connID, err)
	}

	groups, err := r.store.Groups(ctx)
	if err != nil {
		log.Printf("Failed to list groups while disconnecting %s: %v", connID, err)
		return
	}
	for _, g := range groups {
		removed := g.RemoveMember(connID)
		switch {
		case g.Host == connID || (removed && len(g.Members) == 0):
			r.deleteGroup(ctx, g.ID)
		case removed:
			if err := r.store.SaveGroup(ctx, g); err != nil {
				log.Printf("Failed to remove %s from group %s: %v", connID, g.ID, err)
				continue
			}
			r.emitter.Broadcast(EventGroupUpdated, g)
		}
	}
}

func (r *Router) deleteGroup(ctx context.Context, id string) {
	if err := r.store.DeleteGroup(ctx, id); err != nil {
		log.Printf("Failed to delete group %s: %v", id, err)
		return
	}
	log.Printf("Group %s deleted", id)
	r.emitter.Broadcast(EventGroupDeleted, GroupDeleted{GroupID: id})
}
