package cache

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/insight-engine/internal/model"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// normalizeField folds unicode compatibility forms and lowercases, then
// collapses whitespace so cosmetic variations of the same request
// canonicalize identically.
func normalizeField(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = multiSpace.ReplaceAllString(s, " ")
	return s
}

// Canonical renders a request in normalized canonical form. The exact
// tier hashes this text and the similarity tier embeds it, so the two
// tiers always agree on what a request "is".
func Canonical(req model.AnalysisRequest) string {
	modules := make([]string, 0, len(req.Modules))
	for _, m := range req.Modules {
		modules = append(modules, normalizeField(m))
	}
	sort.Strings(modules)

	return strings.Join([]string{
		normalizeField(req.Subject),
		normalizeField(req.Website),
		normalizeField(req.Region),
		strings.Join(modules, ","),
		string(req.EffectiveDepth()),
	}, "|")
}

// Fingerprint returns SHA-256 hex of the canonical request for cache lookup.
func Fingerprint(req model.AnalysisRequest) string {
	h := sha256.Sum256([]byte(Canonical(req)))
	return fmt.Sprintf("%x", h)
}
