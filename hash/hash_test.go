package hash

import "testing"

func TestBlockDeterministic(t *testing.T) {
	h1, err := Block(1, 1_700_000_000, "hello", "abc", uint64(42))
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	h2, err := Block(1, 1_700_000_000, "hello", "abc", uint64(42))
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
}

func TestBlockFieldsAffectHash(t *testing.T) {
	base, err := Block(1, 100, "data", "prev", uint64(0))
	if err != nil {
		t.Fatal(err)
	}

	variants := []string{}
	if h, err := Block(2, 100, "data", "prev", uint64(0)); err == nil {
		variants = append(variants, h)
	}
	if h, err := Block(1, 101, "data", "prev", uint64(0)); err == nil {
		variants = append(variants, h)
	}
	if h, err := Block(1, 100, "datb", "prev", uint64(0)); err == nil {
		variants = append(variants, h)
	}
	if h, err := Block(1, 100, "data", "prev2", uint64(0)); err == nil {
		variants = append(variants, h)
	}
	if h, err := Block(1, 100, "data", "prev", uint64(1)); err == nil {
		variants = append(variants, h)
	}

	for _, v := range variants {
		if v == base {
			t.Errorf("changing one field should change the hash, got collision with base %s", base)
		}
	}
}

func TestBlockSeparatorPreventsAmbiguity(t *testing.T) {
	h1, err := Block(1, 100, "ab", "c", uint64(0))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Block(1, 100, "a", "bc", uint64(0))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("data/previous_hash concatenation ambiguity not prevented by separator")
	}
}
