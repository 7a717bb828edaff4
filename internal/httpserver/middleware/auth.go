// Package middleware holds the gateway's ingress gates: bearer auth with
// per-token tool allowlists, and the UI subtree's IP allowlist.
package middleware

import (
	"crypto/subtle"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/config"
	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/httpserver/httputil"
)

const tokenPolicyLocalsKey = "gateway.token_policy"

// BearerAuth rejects any request whose Authorization header does not carry
// one of the configured tokens, comparing in constant time. The matched
// token's tool policy is stashed in locals for handlers that need it.
func BearerAuth(tokens []config.TokenPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return httputil.WriteError(c, gatewayerr.New(gatewayerr.AuthFailed, "missing or malformed bearer token"))
		}
		presented := []byte(strings.TrimPrefix(header, prefix))

		for _, policy := range tokens {
			if subtle.ConstantTimeCompare(presented, []byte(policy.Token)) == 1 {
				c.Locals(tokenPolicyLocalsKey, policy)
				return c.Next()
			}
		}
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.AuthFailed, "invalid bearer token"))
	}
}

// AllowedTools returns the tool allowlist bound to the request's bearer
// token, or nil if the token (or route) carries no restriction.
func AllowedTools(c *fiber.Ctx) []string {
	policy, ok := c.Locals(tokenPolicyLocalsKey).(config.TokenPolicy)
	if !ok {
		return nil
	}
	return policy.Tools
}

// IPAllowlist rejects requests whose remote address is not within one of
// the configured CIDRs. An empty allowlist disables the gate.
func IPAllowlist(cidrs []string) fiber.Handler {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, raw := range cidrs {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(raw)); err == nil {
			nets = append(nets, ipnet)
		}
	}
	return func(c *fiber.Ctx) error {
		if len(nets) == 0 {
			return c.Next()
		}
		ip := net.ParseIP(c.IP())
		if ip == nil {
			return httputil.WriteError(c, gatewayerr.New(gatewayerr.IPBlocked, "unrecognized client address"))
		}
		for _, n := range nets {
			if n.Contains(ip) {
				return c.Next()
			}
		}
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.IPBlocked, "client address not permitted"))
	}
}
