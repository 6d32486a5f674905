package storage

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// nextRev returns the revision following prev, "<generation>-<suffix>".
func nextRev(prev string) string {
	gen := 0
	if head, _, ok := strings.Cut(prev, "-"); ok {
		gen, _ = strconv.Atoi(head)
	}
	return strconv.Itoa(gen+1) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RevGeneration returns the generation number of a revision, 0 if malformed.
func RevGeneration(rev string) int {
	head, _, _ := strings.Cut(rev, "-")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}
