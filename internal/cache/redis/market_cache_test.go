package redis

import "testing"

func TestMarketCacheKeys(t *testing.T) {
	mc := NewMarketCache(&Client{}, 421614, 0)
	if mc.ttl != defaultMarketTTL {
		t.Fatalf("expected default ttl, got %s", mc.ttl)
	}
	if got := mc.listKey(); got != "lossless:markets:421614" {
		t.Fatalf("unexpected list key: %s", got)
	}
	got := mc.marketKey("0x00000000000000000000000000000000000000AB")
	if got != "lossless:market:421614:0x00000000000000000000000000000000000000ab" {
		t.Fatalf("unexpected market key: %s", got)
	}
}
