// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rendezvous/lib/config"
)

// ICEConfig holds the ICE servers used by every peer connection.
type ICEConfig struct {
	// Servers is the list of STUN and TURN servers used during
	// candidate gathering. Empty means host candidates only.
	Servers []webrtc.ICEServer
}

// ICEConfigFromSettings converts the configured server list. Entries
// with no URLs are skipped; a TURN entry keeps its username and
// credential.
func ICEConfigFromSettings(settings config.ICEConfig) ICEConfig {
	var servers []webrtc.ICEServer
	for _, server := range settings.Servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs, Username: server.Username}
		if server.Credential != "" {
			entry.Credential = server.Credential
		}
		servers = append(servers, entry)
	}
	return ICEConfig{Servers: servers}
}
