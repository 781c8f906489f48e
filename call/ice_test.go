// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"testing"

	"github.com/bureau-foundation/rendezvous/lib/config"
)

func TestICEConfigFromSettingsEmpty(t *testing.T) {
	ice := ICEConfigFromSettings(config.ICEConfig{})
	if len(ice.Servers) != 0 {
		t.Errorf("expected no ICE servers, got %d", len(ice.Servers))
	}
}

func TestICEConfigFromSettingsSkipsEmptyEntries(t *testing.T) {
	ice := ICEConfigFromSettings(config.ICEConfig{
		Servers: []config.ICEServerConfig{
			{URLs: nil, Username: "orphan"},
			{URLs: []string{"stun:stun.example.test:3478"}},
		},
	})
	if len(ice.Servers) != 1 {
		t.Fatalf("expected 1 ICE server, got %d", len(ice.Servers))
	}
	if ice.Servers[0].Credential != nil {
		t.Errorf("STUN entry has credential %v", ice.Servers[0].Credential)
	}
}

func TestICEConfigFromSettingsTURN(t *testing.T) {
	ice := ICEConfigFromSettings(config.ICEConfig{
		Servers: []config.ICEServerConfig{{
			URLs:       []string{"turn:turn.example.test:3478?transport=udp", "turn:turn.example.test:3478?transport=tcp"},
			Username:   "1234:user",
			Credential: "secret",
		}},
	})
	if len(ice.Servers) != 1 {
		t.Fatalf("expected 1 ICE server entry, got %d", len(ice.Servers))
	}
	server := ice.Servers[0]
	if len(server.URLs) != 2 {
		t.Errorf("expected 2 URLs, got %d", len(server.URLs))
	}
	if server.Username != "1234:user" {
		t.Errorf("username = %q, want %q", server.Username, "1234:user")
	}
	if server.Credential != "secret" {
		t.Errorf("credential = %v, want %q", server.Credential, "secret")
	}
}
