package main

import "testing"

func TestAdvertisedURLs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		address string
		tls     bool
		http    string
		ws      string
	}{
		"default_port_only": {address: ":43127", http: "http://localhost:43127", ws: "ws://localhost:43127/ws"},
		"ipv4_wildcard":     {address: "0.0.0.0:9000", http: "http://localhost:9000", ws: "ws://localhost:9000/ws"},
		"ipv4_loopback":     {address: "127.0.0.1:43127", http: "http://127.0.0.1:43127", ws: "ws://127.0.0.1:43127/ws"},
		"ipv6_wildcard":     {address: "[::]:43127", http: "http://localhost:43127", ws: "ws://localhost:43127/ws"},
		"ipv6_host":         {address: "[2001:db8::1]:43127", http: "http://[2001:db8::1]:43127", ws: "ws://[2001:db8::1]:43127/ws"},
		"bare_host":         {address: "rewind.internal", http: "http://rewind.internal", ws: "ws://rewind.internal/ws"},
		"tls_enabled":       {address: ":43127", tls: true, http: "https://localhost:43127", ws: "wss://localhost:43127/ws"},
		"blank_address":     {address: "  ", http: "http://localhost", ws: "ws://localhost/ws"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := listenerURL(tc.address, tc.tls); got != tc.http {
				t.Fatalf("listenerURL(%q, %v) = %q, want %q", tc.address, tc.tls, got, tc.http)
			}
			if got := websocketURL(tc.address, tc.tls); got != tc.ws {
				t.Fatalf("websocketURL(%q, %v) = %q, want %q", tc.address, tc.tls, got, tc.ws)
			}
		})
	}
}
