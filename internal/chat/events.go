// Package chat implements the presence table, group membership and event
// routing behind the MeetChat overlay.
//
// A Router receives decoded client events for a connection, consults its
// Store and re-emits derived events through an Emitter. The Router is not
// safe for concurrent use; callers serialize every call on one goroutine.
package chat

// Inbound event names.
const (
	EventRegister         = "register"
	EventUpdateConfig     = "updateConfig"
	EventSendMessage      = "sendMessage"
	EventDeleteMessage    = "deleteMessage"
	EventSendMedia        = "sendMedia"
	EventEditMessage      = "editMessage"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventCreateGroup      = "createGroup"
	EventRequestJoinGroup = "requestJoinGroup"
	EventAcceptJoinGroup  = "acceptJoinGroup"
	EventSendGroupMessage = "sendGroupMessage"
)

// Outbound event names.
const (
	EventConnected             = "connected"
	EventExistingGroups        = "existingGroups"
	EventConfigChanged         = "configChanged"
	EventUpdateUsers           = "updateUsers"
	EventReceiveGeneralMessage = "receiveGeneralMessage"
	EventReceivePrivateMessage = "receivePrivateMessage"
	EventPrivateMessageSent    = "privateMessageSent"
	EventMessageDeleted        = "messageDeleted"
	EventMessageEdited         = "messageEdited"
	EventDisplayTyping         = "displayTyping"
	EventRemoveTyping          = "removeTyping"
	EventGroupCreated          = "groupCreated"
	EventGroupUpdated          = "groupUpdated"
	EventGroupDeleted          = "groupDeleted"
	EventJoinedGroup           = "joinedGroup"
	EventJoinGroupRequest      = "joinGroupRequest"
	EventReceiveGroupMessage   = "receiveGroupMessage"
)

// Emitter delivers outbound events to live connections. Sends to unknown or
// closed connections are no-ops.
type Emitter interface {
	// Emit sends one event to a single connection.
	Emit(connID, event string, payload any)
	// Broadcast sends one event to every live connection.
	Broadcast(event string, payload any)
	// BroadcastExcept sends one event to every live connection but connID.
	BroadcastExcept(connID, event string, payload any)
	// Connected reports whether connID is a live connection.
	Connected(connID string) bool
}
