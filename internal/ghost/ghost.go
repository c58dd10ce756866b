// Package ghost defines the catalog item and the keys derived from it:
// configuration identities, item identity keys, row fingerprints and the
// folded forms used for searching.
package ghost

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Ghost is one item reported by the Scanner.
type Ghost struct {
	Name                  string `json:"name"`
	Craftman              string `json:"craftman"`
	DirectoryName         string `json:"directory_name"`
	Path                  string `json:"path"`
	Source                string `json:"source"`
	ThumbnailPath         string `json:"thumbnail_path"`
	ThumbnailUseSelfAlpha bool   `json:"thumbnail_use_self_alpha"`
	ThumbnailKind         string `json:"thumbnail_kind"`
}

// keySep separates fields inside derived keys. It cannot appear in a path.
const keySep = "\x1f"

// NormalizePath trims p, converts backslashes to forward slashes and
// lower-cases the result.
func NormalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), `\`, "/"))
}

// AdditionalFolders deduplicates folders by their normalized form and sorts
// them by that form. The first raw spelling of each folder is kept so the
// Scanner receives paths the user actually typed.
func AdditionalFolders(folders []string) []string {
	type entry struct{ raw, key string }
	entries := make([]entry, 0, len(folders))
	for _, f := range folders {
		entries = append(entries, entry{raw: f, key: NormalizePath(f)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := make([]string, 0, len(entries))
	last := ""
	for i, e := range entries {
		if i > 0 && e.key == last {
			continue
		}
		out = append(out, e.raw)
		last = e.key
	}
	return out
}

// Identity builds the configuration identity for a root path plus a set of
// additional folders. Casing, separator style, folder order and duplicate
// folders do not change the result.
func Identity(root string, folders []string) string {
	unique := AdditionalFolders(folders)
	keys := make([]string, len(unique))
	for i, f := range unique {
		keys[i] = NormalizePath(f)
	}
	return NormalizePath(root) + "::" + strings.Join(keys, "|")
}

// Fold applies Unicode compatibility normalization (NFKC) and lower-cases s.
// Stored search columns and incoming queries are both folded this way.
func Fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// Key returns the item identity key: the folded (source, directory name)
// pair. Display attributes do not participate.
func (g Ghost) Key() string {
	return Fold(g.Source) + keySep + Fold(g.DirectoryName)
}

// Fingerprint hashes every mutable display attribute of g. Two items with
// the same key and the same fingerprint render identically.
func (g Ghost) Fingerprint() string {
	d := xxhash.New()
	for _, field := range []string{
		g.Name,
		g.Craftman,
		g.DirectoryName,
		g.Path,
		g.Source,
		g.ThumbnailPath,
		strconv.FormatBool(g.ThumbnailUseSelfAlpha),
		g.ThumbnailKind,
	} {
		d.WriteString(field) //nolint:errcheck
		d.WriteString(keySep) //nolint:errcheck
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
