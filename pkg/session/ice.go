// Package session holds the per-viewer transport registry and the two
// negotiation engines. Host and Viewer are separate types: only the host can
// produce offers and only a viewer can produce answers, so the two sides can
// never talk past each other with crossed offers.
package session

import "github.com/pion/webrtc/v3"

// DefaultICEServers are public STUN servers for address discovery. TURN
// relays are not provisioned here; pass a Configuration carrying them to
// NewRegistry when a deployment needs one.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun2.l.google.com:19302"}},
}

// DefaultConfiguration is the transport configuration a registry starts from.
func DefaultConfiguration() webrtc.Configuration {
	return webrtc.Configuration{ICEServers: DefaultICEServers}
}
