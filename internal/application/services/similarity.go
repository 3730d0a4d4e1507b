package services

import "strings"

// SimilarityRatio returns the case-insensitive Ratcliff/Obershelp ratio of a and b in [0,1].
// It is 2*M/T where M counts characters in recursively found longest common blocks
// and T is the combined length.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingCharacters(ra, rb)) / float64(total)
}

func matchingCharacters(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestCommonBlock(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestCommonBlock finds the longest common substring of a[alo:ahi] and b[blo:bhi].
// Ties resolve to the block starting earliest in a, then earliest in b.
func longestCommonBlock(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	prev := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		cur := make([]int, bhi-blo+1)
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev = cur
	}
	return besti, bestj, bestk
}
