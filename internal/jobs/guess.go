package jobs

import (
	"net/url"
	"regexp"
	"strings"
)

var episodeTag = regexp.MustCompile(`(?i)S\d{2}E\d{2}`)

// GuessCategory picks the category for a submission. An explicit category
// wins; names carrying an SxxEyy tag are TV, everything else is a movie.
func GuessCategory(explicit, name, tvCategory, moviesCategory string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if episodeTag.MatchString(name) {
		return tvCategory
	}
	return moviesCategory
}

// MagnetDisplayName returns the dn parameter of a magnet URI, or the first
// 70 characters of the URI when it has none.
func MagnetDisplayName(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		if dn := u.Query().Get("dn"); dn != "" {
			return dn
		}
	}
	if len(uri) > 70 {
		return uri[:70]
	}
	return uri
}
