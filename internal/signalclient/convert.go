package signalclient

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
)

func FromWebRTC(desc webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

// ToWebRTC converts a relayed description, rejecting anything that is not
// an offer or an answer.
func ToWebRTC(desc protocol.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(desc.Type)
	if t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("unexpected sdp type %q", desc.Type)
	}
	if desc.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("empty %s sdp", desc.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}

func CandidateFromWebRTC(c webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func CandidateToWebRTC(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
