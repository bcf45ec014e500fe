package build

import (
	"crypto/sha256"
	"sort"

	"github.com/importprune/prune/model"
)

// summaryHasher accumulates a content-hash summary of every source file
// seen during a build, independent of the order files are processed in.
// The resulting digest is recorded in a Result's SummaryHash and in a
// serialized graph's header, so a loaded graph can be trusted only when it
// matches the current repository scan.
type summaryHasher struct {
	digests map[string][]byte
}

func newSummaryHasher() *summaryHasher {
	return &summaryHasher{digests: make(map[string][]byte)}
}

func (h *summaryHasher) add(path string, content []byte) {
	h.digests[path] = model.HashBytes(content)
}

// sum returns the summary hash: the SHA-256 of every (path, digest) pair
// sorted by path, so concurrent insertion order never affects the result.
func (h *summaryHasher) sum() []byte {
	paths := make([]string, 0, len(h.digests))
	for p := range h.digests {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	sum := sha256.New()
	for _, p := range paths {
		sum.Write([]byte(p))
		sum.Write([]byte{0})
		sum.Write(h.digests[p])
	}
	return sum.Sum(nil)
}
