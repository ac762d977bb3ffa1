package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestMemory(now *time.Time) *Memory {
	m := NewMemory()
	m.now = func() time.Time { return *now }
	return m
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set(ctx, "forever", []byte("x"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, _ := m.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit before expiry")
	}
	if diff := cmp.Diff("v", string(got)); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss at expiry")
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Fatal("zero ttl entry should never expire")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", []byte("abc"), 0)

	got, _, _ := m.Get(ctx, "k")
	got[0] = 'z'

	again, _, _ := m.Get(ctx, "k")
	if diff := cmp.Diff("abc", string(again)); diff != "" {
		t.Errorf("stored value mutated (-want +got):\n%s", diff)
	}
}

func TestMemoryDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"bundles_all", "bundles_slug_x", "user_filters_1", "article_filter_ab"} {
		_ = m.Set(ctx, k, []byte("1"), time.Hour)
	}

	if err := m.DeleteByPrefix(ctx, PrefixBundles); err != nil {
		t.Fatalf("delete by prefix: %v", err)
	}

	var left []string
	for k := range m.entries {
		left = append(left, k)
	}
	sort.Strings(left)
	if diff := cmp.Diff([]string{"article_filter_ab", "user_filters_1"}, left); diff != "" {
		t.Errorf("remaining keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)
	_ = m.Set(ctx, "a", []byte("1"), time.Second)
	_ = m.Set(ctx, "b", []byte("1"), time.Hour)

	now = now.Add(time.Minute)
	if diff := cmp.Diff(1, m.Sweep()); diff != "" {
		t.Errorf("swept count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, m.Len()); diff != "" {
		t.Errorf("len mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("article_filter_%d", i%4)
			_ = m.Set(ctx, key, []byte("x"), time.Minute)
			_, _, _ = m.Get(ctx, key)
			if i%5 == 0 {
				_ = m.DeleteByPrefix(ctx, PrefixArticleFilter)
			}
		}(i)
	}
	wg.Wait()
}

func TestJSONHelpers(t *testing.T) {
	type payload struct {
		Name  string
		Score int
	}
	ctx := context.Background()
	m := NewMemory()

	var miss payload
	found, err := GetJSON(ctx, m, "missing", &miss)
	if err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}

	in := payload{Name: "sailing", Score: 60}
	if err := SetJSON(ctx, m, "p", in, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var out payload
	found, err = GetJSON(ctx, m, "p", &out)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	_ = m.Set(ctx, "bad", []byte("{not json"), time.Minute)
	if _, err := GetJSON(ctx, m, "bad", &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestHashStable(t *testing.T) {
	a, err := Hash(map[string]int{"b": 2, "a": 1}, "x")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := Hash(map[string]int{"a": 1, "b": 2}, "x")
	c, _ := Hash(map[string]int{"a": 1, "b": 2}, "y")
	if a != b {
		t.Error("hash of equal payloads differs")
	}
	if a == c {
		t.Error("hash of different payloads collides")
	}
}

func TestEscapeGlob(t *testing.T) {
	if diff := cmp.Diff(`curator:bundles_\*\[x\]`, escapeGlob("curator:bundles_*[x]")); diff != "" {
		t.Errorf("escapeGlob mismatch (-want +got):\n%s", diff)
	}
}
