package balancer

import (
	"testing"

	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

func TestCreateHash_NoneModeReturnsNil(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashNone}
	rec := &types.TargetRecord{ConsumerID: "c1", RemoteAddr: "1.2.3.4"}
	if h := createHash(upstream, rec); h != nil {
		t.Fatalf("hash_on none should yield no hash, got %v", *h)
	}
}

func TestCreateHash_Deterministic(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashIP}
	rec := &types.TargetRecord{RemoteAddr: "203.0.113.7"}

	first := createHash(upstream, rec)
	second := createHash(upstream, rec)
	if first == nil || second == nil || *first != *second {
		t.Fatalf("createHash is not deterministic: %v vs %v", first, second)
	}
	want := ringbalancer.Hash([]byte("203.0.113.7"))
	if *first != want {
		t.Fatalf("createHash = %d, want %d", *first, want)
	}
}

func TestCreateHash_ConsumerFallsBackToCredential(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashConsumer}
	rec := &types.TargetRecord{CredentialID: "cred-1"}
	h := createHash(upstream, rec)
	if h == nil {
		t.Fatal("expected a hash from credential_id when consumer_id is absent")
	}
	want := ringbalancer.Hash([]byte("cred-1"))
	if *h != want {
		t.Fatalf("createHash = %d, want %d", *h, want)
	}
}

func TestCreateHash_FallsBackWhenPrimaryAttributeAbsent(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashConsumer, HashFallback: types.HashIP}
	rec := &types.TargetRecord{RemoteAddr: "198.51.100.9"}

	h := createHash(upstream, rec)
	if h == nil {
		t.Fatal("expected fallback hash_on ip to produce a value")
	}
	want := ringbalancer.Hash([]byte("198.51.100.9"))
	if *h != want {
		t.Fatalf("createHash = %d, want %d", *h, want)
	}
}

func TestCreateHash_HeaderModeJoinsMultiValue(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashHeader, HashOnHeader: "X-Shard"}
	rec := &types.TargetRecord{Headers: map[string][]string{"X-Shard": {"a", "b"}}}

	h := createHash(upstream, rec)
	if h == nil {
		t.Fatal("expected a hash from header values")
	}
	want := ringbalancer.Hash([]byte("ab"))
	if *h != want {
		t.Fatalf("createHash = %d, want %d", *h, want)
	}
}

func TestCreateHash_NoIdentifierAndNoFallbackReturnsNil(t *testing.T) {
	upstream := &types.Upstream{HashOn: types.HashConsumer}
	rec := &types.TargetRecord{}
	if h := createHash(upstream, rec); h != nil {
		t.Fatalf("expected nil with no consumer/credential and no fallback, got %v", *h)
	}
}
