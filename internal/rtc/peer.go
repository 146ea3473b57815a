package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpmeet/internal/config"
)

// PeerConnectionFactory builds one peer connection per remote participant.
type PeerConnectionFactory func() (*webrtc.PeerConnection, error)

// NewPeerConnectionFactory returns a factory using the configured STUN
// server. No relay servers are configured.
func NewPeerConnectionFactory(cfg *config.Config) PeerConnectionFactory {
	return NewPeerConnectionFactoryFromConfig(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}},
	})
}

// NewPeerConnectionFactoryFromConfig uses pion's default codecs and
// interceptors with the given configuration.
func NewPeerConnectionFactoryFromConfig(pcConfig webrtc.Configuration) PeerConnectionFactory {
	return func() (*webrtc.PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(pcConfig)
		if err != nil {
			return nil, newError("create peer connection", "", err)
		}
		return pc, nil
	}
}
