package signaling

import (
	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/room"
)

func toWireParticipant(p room.Participant) protocol.Participant {
	return protocol.Participant{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		AvatarRef:       p.AvatarRef,
		IsAudioMuted:    p.IsAudioMuted,
		IsVideoOff:      p.IsVideoOff,
		IsScreenSharing: p.IsScreenSharing,
		JoinedAt:        p.JoinedAt,
	}
}

func toWireParticipants(ps []room.Participant) []protocol.Participant {
	out := make([]protocol.Participant, len(ps))
	for i, p := range ps {
		out[i] = toWireParticipant(p)
	}
	return out
}

func toWireMessage(m room.ChatMessage) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		SentAt:     m.SentAt,
	}
}

func toWireMessages(ms []room.ChatMessage) []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, len(ms))
	for i, m := range ms {
		out[i] = toWireMessage(m)
	}
	return out
}
