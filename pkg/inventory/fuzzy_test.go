package inventory

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Pêche", "peche"},
		{"  Crème   Fraîche ", "creme fraiche"},
		{"APPLE", "apple"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("identical after folding", func(t *testing.T) {
		if got := Similarity("Pêche", "peche"); got != 1 {
			t.Errorf("expected 1, got %v", got)
		}
	})

	t.Run("containment scores above floor", func(t *testing.T) {
		if got := Similarity("apple", "Gala apple"); got < SimilarityFloor {
			t.Errorf("containment score %v below floor", got)
		}
	})

	t.Run("near miss beats unrelated", func(t *testing.T) {
		near := Similarity("aple", "apple")
		far := Similarity("flour", "apple")
		if near <= far {
			t.Errorf("near=%v should exceed far=%v", near, far)
		}
		if near < SimilarityFloor {
			t.Errorf("one-letter typo %v should pass the floor", near)
		}
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		if got := Similarity("", "apple"); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"apple", "aple", 1},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
