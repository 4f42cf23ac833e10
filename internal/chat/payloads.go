package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Message type tags.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeGIF      = "gif"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
)

// MessageID is a client-generated message identifier. Clients send either a
// JSON string or a number; both decode to the same textual form.
type MessageID string

// UnmarshalJSON accepts a JSON string or number.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("message id must be a string or number, got %s", data)
	}
	*id = MessageID(data)
	return nil
}

// SendMessageRequest is the payload of a sendMessage event.
type SendMessageRequest struct {
	ID      MessageID `json:"id"`
	To      string    `json:"to"`
	Message string    `json:"message"`
}

// SendMediaRequest is the payload of a sendMedia event. FileURL comes from
// the upload endpoint.
type SendMediaRequest struct {
	ID       MessageID `json:"id"`
	To       string    `json:"to"`
	FileURL  string    `json:"fileUrl"`
	FileType string    `json:"fileType"`
	Filename string    `json:"filename"`
}

// SendGroupMessageRequest is the payload of a sendGroupMessage event.
type SendGroupMessageRequest struct {
	ID      MessageID `json:"id"`
	GroupID string    `json:"groupId"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
}

// DeleteMessageRequest is the payload of a deleteMessage event.
type DeleteMessageRequest struct {
	ID MessageID `json:"id"`
	To string    `json:"to"`
}

// EditMessageRequest is the payload of an editMessage event.
type EditMessageRequest struct {
	ID         MessageID `json:"id"`
	To         string    `json:"to"`
	NewMessage string    `json:"newMessage"`
}

// TypingRequest is the payload of typing and stopTyping events.
type TypingRequest struct {
	To           string `json:"to"`
	Conversation string `json:"conversation"`
}

// CreateGroupRequest is the payload of a createGroup event.
type CreateGroupRequest struct {
	GroupName string `json:"groupName"`
	Open      bool   `json:"open"`
}

// RequestJoinGroupRequest is the payload of a requestJoinGroup event.
type RequestJoinGroupRequest struct {
	GroupID string `json:"groupId"`
}

// AcceptJoinGroupRequest is the payload of an acceptJoinGroup event.
type AcceptJoinGroupRequest struct {
	GroupID     string `json:"groupId"`
	RequesterID string `json:"requesterId"`
}

// ChatMessage is delivered by receiveGeneralMessage, receivePrivateMessage,
// privateMessageSent and receiveGroupMessage.
type ChatMessage struct {
	ID           MessageID `json:"id"`
	From         string    `json:"from"`
	FromSocketID string    `json:"fromSocketId"`
	To           string    `json:"to,omitempty"`
	GroupID      string    `json:"groupId,omitempty"`
	Message      string    `json:"message"`
	Type         string    `json:"type"`
	Filename     string    `json:"filename,omitempty"`
	Timestamp    string    `json:"timestamp"`
}

// MessageDeleted is the payload of a messageDeleted event.
type MessageDeleted struct {
	ID   MessageID `json:"id"`
	Chat string    `json:"chat"`
}

// MessageEdited is the payload of a messageEdited event.
type MessageEdited struct {
	ID         MessageID `json:"id"`
	From       string    `json:"from"`
	NewMessage string    `json:"newMessage"`
	Edited     bool      `json:"edited"`
	Type       string    `json:"type"`
	Timestamp  string    `json:"timestamp"`
	Chat       string    `json:"chat"`
}

// TypingNotice is the payload of displayTyping and removeTyping events.
type TypingNotice struct {
	From         string `json:"from"`
	Conversation string `json:"conversation"`
	SocketID     string `json:"socketId"`
}

// GroupDeleted is the payload of a groupDeleted event.
type GroupDeleted struct {
	GroupID string `json:"groupId"`
}

// JoinGroupRequest is sent to the host of a closed group.
type JoinGroupRequest struct {
	GroupID       string `json:"groupId"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

// Connected tells a new connection its own identifier.
type Connected struct {
	ID string `json:"id"`
}
