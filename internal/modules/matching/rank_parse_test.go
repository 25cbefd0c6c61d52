// README: Parser tests for malformed provider ranking output.
package matching

import (
	"reflect"
	"testing"
)

func TestParseRankOrder(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		n    int
		want []int
	}{
		{"clean", "2,1,3", 3, []int{1, 0, 2}},
		{"identity", "1,2,3", 3, []int{0, 1, 2}},
		{"whitespace", " 3 , 1 , 2 ", 3, []int{2, 0, 1}},
		{"partial and out of range", "5,2", 3, []int{1, 0, 2}},
		{"duplicates dropped", "2,2,1", 3, []int{1, 0, 2}},
		{"empty falls back to input order", "", 4, []int{0, 1, 2, 3}},
		{"pure garbage", "sorry, I cannot rank these", 2, []int{0, 1}},
		{"trailing prose", "2,1,3 (best match first)", 3, []int{1, 0, 2}},
		{"zero rejected", "0,2,1", 2, []int{1, 0}},
		{"single candidate", "1", 1, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseRankOrder(tc.raw, tc.n)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseRankOrder(%q, %d) = %v, want %v", tc.raw, tc.n, got, tc.want)
			}
		})
	}
}

func TestParseRankOrderAlwaysPermutation(t *testing.T) {
	inputs := []string{"", "3,3,3", "99", "1,2,3,4,5,6,7,8,9", "a1b2c3", ",,,,"}
	const n = 5
	for _, raw := range inputs {
		got := parseRankOrder(raw, n)
		if len(got) != n {
			t.Fatalf("parseRankOrder(%q): got %d entries, want %d", raw, len(got), n)
		}
		seen := make(map[int]bool, n)
		for _, idx := range got {
			if idx < 0 || idx >= n || seen[idx] {
				t.Fatalf("parseRankOrder(%q): invalid permutation %v", raw, got)
			}
			seen[idx] = true
		}
	}
}

func TestParseRankOrderZeroCandidates(t *testing.T) {
	if got := parseRankOrder("1,2", 0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}
