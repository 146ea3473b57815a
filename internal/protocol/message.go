// Package protocol defines the typed events exchanged between call clients
// and the signaling server, and the codecs that put them on the wire.
package protocol

import "time"

// Type is the wire discriminator carried in every envelope.
type Type string

// Client to server.
const (
	TypeJoinRoom          Type = "join-room"
	TypeSendMessage       Type = "send-message"
	TypeToggleAudio       Type = "toggle-audio"
	TypeToggleVideo       Type = "toggle-video"
	TypeToggleScreenShare Type = "toggle-screen-share"
	TypeLeaveRoom         Type = "leave-room"
)

// Relayed in both directions. Clients fill TargetParticipantID, the server
// replaces it with SenderParticipantID before forwarding.
const (
	TypeOffer        Type = "webrtc-offer"
	TypeAnswer       Type = "webrtc-answer"
	TypeICECandidate Type = "webrtc-ice-candidate"
)

// Server to client.
const (
	TypeJoinedRoom          Type = "joined-room"
	TypeParticipantJoined   Type = "participant-joined"
	TypeParticipantLeft     Type = "participant-left"
	TypeParticipantsUpdated Type = "participants-updated"
	TypeNewMessage          Type = "new-message"
	TypeAudioToggled        Type = "participant-audio-toggled"
	TypeVideoToggled        Type = "participant-video-toggled"
	TypeScreenShareStarted  Type = "screen-share-started"
	TypeScreenShareStopped  Type = "screen-share-stopped"
	TypeError               Type = "error"
)

// Event is implemented by every wire message.
type Event interface {
	EventType() Type
}

// Participant is the wire view of a room member.
type Participant struct {
	ID              string    `json:"id" msgpack:"id"`
	DisplayName     string    `json:"displayName" msgpack:"displayName"`
	AvatarRef       string    `json:"avatarRef,omitempty" msgpack:"avatarRef,omitempty"`
	IsAudioMuted    bool      `json:"isAudioMuted" msgpack:"isAudioMuted"`
	IsVideoOff      bool      `json:"isVideoOff" msgpack:"isVideoOff"`
	IsScreenSharing bool      `json:"isScreenSharing" msgpack:"isScreenSharing"`
	JoinedAt        time.Time `json:"joinedAt" msgpack:"joinedAt"`
}

// ChatMessage is the wire view of a chat history entry.
type ChatMessage struct {
	ID         string    `json:"id" msgpack:"id"`
	SenderID   string    `json:"senderId" msgpack:"senderId"`
	SenderName string    `json:"senderName" msgpack:"senderName"`
	Text       string    `json:"text" msgpack:"text"`
	SentAt     time.Time `json:"sentAt" msgpack:"sentAt"`
}

// SessionDescription mirrors RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

type JoinRoom struct {
	RoomID      string `json:"roomId" msgpack:"roomId"`
	DisplayName string `json:"displayName" msgpack:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty" msgpack:"avatarRef,omitempty"`
}

type SendMessage struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
	Text   string `json:"text" msgpack:"text"`
}

// ToggleAudio, ToggleVideo and ToggleScreenShare change the sender's own
// media state. ParticipantID is optional; when present it must name the
// sender or the toggle is rejected.
type ToggleAudio struct {
	RoomID        string `json:"roomId" msgpack:"roomId"`
	ParticipantID string `json:"participantId,omitempty" msgpack:"participantId,omitempty"`
	Value         bool   `json:"newValue" msgpack:"newValue"`
}

type ToggleVideo struct {
	RoomID        string `json:"roomId" msgpack:"roomId"`
	ParticipantID string `json:"participantId,omitempty" msgpack:"participantId,omitempty"`
	Value         bool   `json:"newValue" msgpack:"newValue"`
}

type ToggleScreenShare struct {
	RoomID        string `json:"roomId" msgpack:"roomId"`
	ParticipantID string `json:"participantId,omitempty" msgpack:"participantId,omitempty"`
	Value         bool   `json:"newValue" msgpack:"newValue"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
}

type Offer struct {
	TargetParticipantID string             `json:"targetParticipantId,omitempty" msgpack:"targetParticipantId,omitempty"`
	SenderParticipantID string             `json:"senderParticipantId,omitempty" msgpack:"senderParticipantId,omitempty"`
	Description         SessionDescription `json:"payload" msgpack:"payload"`
}

type Answer struct {
	TargetParticipantID string             `json:"targetParticipantId,omitempty" msgpack:"targetParticipantId,omitempty"`
	SenderParticipantID string             `json:"senderParticipantId,omitempty" msgpack:"senderParticipantId,omitempty"`
	Description         SessionDescription `json:"payload" msgpack:"payload"`
}

type Candidate struct {
	TargetParticipantID string       `json:"targetParticipantId,omitempty" msgpack:"targetParticipantId,omitempty"`
	SenderParticipantID string       `json:"senderParticipantId,omitempty" msgpack:"senderParticipantId,omitempty"`
	Candidate           ICECandidate `json:"payload" msgpack:"payload"`
}

type JoinedRoom struct {
	SelfParticipantID string        `json:"selfParticipantId" msgpack:"selfParticipantId"`
	RoomID            string        `json:"roomId" msgpack:"roomId"`
	Participants      []Participant `json:"participants" msgpack:"participants"`
	ChatHistory       []ChatMessage `json:"chatHistory" msgpack:"chatHistory"`
}

type ParticipantJoined struct {
	Participant Participant `json:"participant" msgpack:"participant"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
}

type ParticipantsUpdated struct {
	Participants []Participant `json:"participants" msgpack:"participants"`
}

type NewMessage struct {
	Message ChatMessage `json:"chatMessage" msgpack:"chatMessage"`
}

type AudioToggled struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
	Value         bool   `json:"value" msgpack:"value"`
}

type VideoToggled struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
	Value         bool   `json:"value" msgpack:"value"`
}

type ScreenShareStarted struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
}

type ScreenShareStopped struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
}

// Error codes sent to clients.
const (
	CodeBadRequest    = "bad-request"
	CodeRoomNotFound  = "room-not-found"
	CodeNotInRoom     = "not-in-room"
	CodeAlreadyInRoom = "already-in-room"
	CodeInternal      = "internal"
)

type Error struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"error" msgpack:"error"`
}

func (JoinRoom) EventType() Type            { return TypeJoinRoom }
func (SendMessage) EventType() Type         { return TypeSendMessage }
func (ToggleAudio) EventType() Type         { return TypeToggleAudio }
func (ToggleVideo) EventType() Type         { return TypeToggleVideo }
func (ToggleScreenShare) EventType() Type   { return TypeToggleScreenShare }
func (LeaveRoom) EventType() Type           { return TypeLeaveRoom }
func (Offer) EventType() Type               { return TypeOffer }
func (Answer) EventType() Type              { return TypeAnswer }
func (Candidate) EventType() Type           { return TypeICECandidate }
func (JoinedRoom) EventType() Type          { return TypeJoinedRoom }
func (ParticipantJoined) EventType() Type   { return TypeParticipantJoined }
func (ParticipantLeft) EventType() Type     { return TypeParticipantLeft }
func (ParticipantsUpdated) EventType() Type { return TypeParticipantsUpdated }
func (NewMessage) EventType() Type          { return TypeNewMessage }
func (AudioToggled) EventType() Type        { return TypeAudioToggled }
func (VideoToggled) EventType() Type        { return TypeVideoToggled }
func (ScreenShareStarted) EventType() Type  { return TypeScreenShareStarted }
func (ScreenShareStopped) EventType() Type  { return TypeScreenShareStopped }
func (Error) EventType() Type               { return TypeError }

// New returns a pointer to the zero value of the event registered for t.
func New(t Type) (Event, bool) {
	switch t {
	case TypeJoinRoom:
		return &JoinRoom{}, true
	case TypeSendMessage:
		return &SendMessage{}, true
	case TypeToggleAudio:
		return &ToggleAudio{}, true
	case TypeToggleVideo:
		return &ToggleVideo{}, true
	case TypeToggleScreenShare:
		return &ToggleScreenShare{}, true
	case TypeLeaveRoom:
		return &LeaveRoom{}, true
	case TypeOffer:
		return &Offer{}, true
	case TypeAnswer:
		return &Answer{}, true
	case TypeICECandidate:
		return &Candidate{}, true
	case TypeJoinedRoom:
		return &JoinedRoom{}, true
	case TypeParticipantJoined:
		return &ParticipantJoined{}, true
	case TypeParticipantLeft:
		return &ParticipantLeft{}, true
	case TypeParticipantsUpdated:
		return &ParticipantsUpdated{}, true
	case TypeNewMessage:
		return &NewMessage{}, true
	case TypeAudioToggled:
		return &AudioToggled{}, true
	case TypeVideoToggled:
		return &VideoToggled{}, true
	case TypeScreenShareStarted:
		return &ScreenShareStarted{}, true
	case TypeScreenShareStopped:
		return &ScreenShareStopped{}, true
	case TypeError:
		return &Error{}, true
	}
	return nil, false
}
