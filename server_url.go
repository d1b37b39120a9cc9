package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL returns the HTTP base URL operators should use for address.
func listenerURL(address string, tlsEnabled bool) string {
	return advertisedURL("http", address, tlsEnabled, "")
}

// websocketURL returns the viewer endpoint clients dial for control and timeline frames.
func websocketURL(address string, tlsEnabled bool) string {
	return advertisedURL("ws", address, tlsEnabled, "/ws")
}

func advertisedURL(scheme, address string, tlsEnabled bool, path string) string {
	if tlsEnabled {
		scheme += "s"
	}
	return fmt.Sprintf("%s://%s%s", scheme, normaliseHostPort(address), path)
}

// normaliseHostPort replaces wildcard hosts with localhost so the URL is reachable.
func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(strings.TrimSpace(host), port)
}
