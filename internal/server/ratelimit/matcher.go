package ratelimit

import (
	"path"
	"strings"
)

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Exact paths win over patterns, and patterns over prefixes. Returns nil if nothing matches.
func MatchEndpoint(reqPath string, method string, configs []EndpointConfig) *EndpointConfig {
	// Health checks are unlimited.
	if reqPath == "/health" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range configs {
		if c := &configs[i]; c.Method == method && c.Path == reqPath {
			return c
		}
	}
	for i := range configs {
		c := &configs[i]
		if c.Method != method || !strings.Contains(c.Path, "*") {
			continue
		}
		if ok, _ := path.Match(c.Path, reqPath); ok {
			return c
		}
	}
	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(reqPath, c.Path) {
			return c
		}
	}
	return nil
}
