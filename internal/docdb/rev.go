package docdb

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// Generation returns the numeric prefix of a revision such as "3-ab12".
// Malformed revisions have generation 0.
func Generation(rev string) int {
	prefix, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func nextRev(prev string, deleted bool, body []byte) string {
	h := md5.New()
	h.Write([]byte(prev))
	if deleted {
		h.Write([]byte{0, 1})
	} else {
		h.Write([]byte{0, 0})
	}
	h.Write(body)
	return strconv.Itoa(Generation(prev)+1) + "-" + hex.EncodeToString(h.Sum(nil))
}

// RevWins reports whether revision a beats revision b under last-write-wins:
// higher generation first, then the lexicographically greater revision.
// Every replica picks the same winner, so they converge.
func RevWins(a, b string) bool {
	ga, gb := Generation(a), Generation(b)
	if ga != gb {
		return ga > gb
	}
	return a > b
}
