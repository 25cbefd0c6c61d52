// README: Defensive parsing of the provider's comma-separated ranking output.
package matching

import (
	"strconv"
	"strings"
)

// parseRankOrder repairs a best-effort ranking string into a complete
// permutation of 1..n (returned zero-based). The provider is untrusted
// free text, so: every rune that is not a digit or comma is stripped,
// out-of-range and duplicate indices are dropped, and indices the provider
// omitted are appended in their original order. The result always has
// exactly n entries.
func parseRankOrder(raw string, n int) []int {
	if n <= 0 {
		return nil
	}

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' {
			b.WriteRune(r)
		}
	}

	order := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, tok := range strings.Split(b.String(), ",") {
		if tok == "" {
			continue
		}
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 1 || idx > n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx-1)
	}

	for i := 1; i <= n; i++ {
		if !seen[i] {
			order = append(order, i-1)
		}
	}
	return order
}
