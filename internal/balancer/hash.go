package balancer

import (
	"strings"

	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

// createHash computes the 32-bit consistent-hash key for a request against
// an upstream's hash policy. It returns nil (not an error) whenever the
// policy yields no usable identifier — hash_on is none, the configured
// attribute is absent from the request, and so is the fallback.
func createHash(upstream *types.Upstream, rec *types.TargetRecord) *uint32 {
	mode := upstream.HashOn
	header := upstream.HashOnHeader

	for pass := 0; pass < 2; pass++ {
		if mode == types.HashNone || mode == "" {
			return nil
		}

		if id, ok := hashIdentifier(mode, header, rec); ok {
			value := ringbalancer.Hash([]byte(id))
			return &value
		}

		mode = upstream.HashFallback
		header = upstream.HashFallbackHeader
	}
	return nil
}

// hashIdentifier extracts the raw identifier bytes for one hash mode. ok is
// false when the mode's attribute is simply absent from this request (not
// an error condition — it just means "try the fallback, or give up").
func hashIdentifier(mode, header string, rec *types.TargetRecord) (string, bool) {
	switch mode {
	case types.HashConsumer:
		if rec.ConsumerID != "" {
			return rec.ConsumerID, true
		}
		if rec.CredentialID != "" {
			return rec.CredentialID, true
		}
		return "", false

	case types.HashIP:
		if rec.RemoteAddr == "" {
			return "", false
		}
		return rec.RemoteAddr, true

	case types.HashHeader:
		if header == "" {
			return "", false
		}
		values, ok := rec.Headers[header]
		if !ok || len(values) == 0 {
			return "", false
		}
		return strings.Join(values, ""), true

	default:
		return "", false
	}
}
