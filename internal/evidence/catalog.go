package evidence

import "github.com/scholar-rag/backend/pkg/textutil"

// CanonicalPublication is one entry of the static publication catalog
// used to resolve display fields for references.
type CanonicalPublication struct {
	Title   string   `mapstructure:"title" json:"title"`
	Venue   string   `mapstructure:"venue" json:"venue"`
	Year    int      `mapstructure:"year" json:"year"`
	Aliases []string `mapstructure:"aliases" json:"aliases"`
}

// Catalog is consulted read-only; entries are matched by normalized
// alias against a chunk's paper key, title or source file name.
type Catalog []CanonicalPublication

// Resolve returns the first catalog entry whose title or any alias
// matches one of the candidate strings after normalization.
func (c Catalog) Resolve(candidates ...string) (CanonicalPublication, bool) {
	keys := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if key := textutil.NormalizeKey(candidate); key != "" {
			keys[key] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return CanonicalPublication{}, false
	}

	for _, pub := range c {
		if _, ok := keys[textutil.NormalizeKey(pub.Title)]; ok {
			return pub, true
		}
		for _, alias := range pub.Aliases {
			if _, ok := keys[textutil.NormalizeKey(alias)]; ok {
				return pub, true
			}
		}
	}
	return CanonicalPublication{}, false
}
