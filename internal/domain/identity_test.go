package domain

import (
	"testing"
	"time"
)

func TestIdentityPrimaryKeyStable(t *testing.T) {
	now := time.Now()
	id := NewIdentity(PlatformEthereum, "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", now)
	want := "ethereum,0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
	if got := id.PrimaryKey(); got != want {
		t.Fatalf("PrimaryKey() = %q, want %q", got, want)
	}

	// Mutating every field the spec allows to change must not move
	// the primary key (spec §3 invariant).
	id.DisplayName = "vitalik"
	id.AvatarURL = "https://example.com/a.png"
	id.ProfileURL = "https://example.com/p"
	id.Uid = "123"
	id.UpdatedAt = now.Add(time.Hour)
	if got := id.PrimaryKey(); got != want {
		t.Fatalf("PrimaryKey() changed after mutating non-key fields: %q", got)
	}
}

func TestContractPrimaryKey(t *testing.T) {
	c := NewContract(ChainEthereum, ContractCategoryENS, "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1", time.Now())
	want := "ethereum,0x00000000000c2e074ec69a0dfb2997ba6c7d2e1"
	if got := c.PrimaryKey(); got != want {
		t.Fatalf("Contract.PrimaryKey() = %q, want %q", got, want)
	}
}

func TestNewIdentityGeneratesUUID(t *testing.T) {
	a := NewIdentity(PlatformTwitter, "jack", time.Now())
	b := NewIdentity(PlatformTwitter, "jack", time.Now())
	if a.UUID == b.UUID {
		t.Fatalf("two NewIdentity calls produced the same uuid")
	}
	if a.UUID.String() == "" {
		t.Fatalf("uuid not populated")
	}
}
