package attachment

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// ignoredNames matches a single path segment against the usual noise (VCS
// metadata, dependency trees) kept out of the walker-limited file list fed
// into prompt rendering context. A single-segment alternation pattern is
// what gobwas/glob is good at; doublestar below owns the recursive "**"
// listing itself.
var ignoredNames = glob.MustCompile("{.git,node_modules,vendor}")

// WalkLimited lists regular files under root no more than depth directory
// levels deep, relative to root, sorted for deterministic template output.
// depth <= 0 means the agent declared no walker_depth, so no files are
// listed (spec.md §4.5's Preparing state only feeds a file list when an
// agent opts in).
func WalkLimited(root string, depth int) []string {
	if depth <= 0 {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*")
	if err != nil {
		return nil
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if isIgnored(m) {
			continue
		}
		if strings.Count(m, "/")+1 > depth {
			continue
		}
		info, statErr := fs.Stat(os.DirFS(root), m)
		if statErr != nil || info.IsDir() {
			continue
		}
		out = append(out, filepath.ToSlash(m))
	}
	sort.Strings(out)
	return out
}

func isIgnored(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if ignoredNames.Match(seg) {
			return true
		}
	}
	return false
}
