package domain

import "testing"

func TestParsePlatformCaseInsensitive(t *testing.T) {
	p, ok := ParsePlatform("ETHEREUM")
	if !ok || p != PlatformEthereum {
		t.Fatalf("ParsePlatform(ETHEREUM) = %v, %v", p, ok)
	}
	if _, ok := ParsePlatform("not_a_platform"); ok {
		t.Fatalf("ParsePlatform accepted an unknown platform string")
	}
}

func TestHasReverseFlag(t *testing.T) {
	for _, p := range []Platform{PlatformLens, PlatformDotbit, PlatformEthereum, PlatformENS, PlatformSNS} {
		if !p.HasReverseFlag() {
			t.Errorf("%s should have a meaningful reverse flag", p)
		}
	}
	if PlatformTwitter.HasReverseFlag() {
		t.Errorf("twitter should not have a meaningful reverse flag")
	}
}

func TestIsOwnable(t *testing.T) {
	for _, p := range []Platform{PlatformLens, PlatformFarcaster, PlatformENS} {
		if !p.IsOwnable() {
			t.Errorf("%s should be ownable", p)
		}
	}
	if PlatformEthereum.IsOwnable() {
		t.Errorf("ethereum wallets are not themselves ownable")
	}
	if PlatformTwitter.IsOwnable() {
		t.Errorf("twitter should not be ownable")
	}
}
