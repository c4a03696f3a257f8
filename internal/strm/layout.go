// Package strm turns finished jobs into .strm pointer files inside the
// TV and movie library trees.
package strm

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/upstream"
)

var (
	tvPattern    = regexp.MustCompile(`(?i)(.*?)[ ._-]*S(\d{1,2})E(\d{1,2})`)
	moviePattern = regexp.MustCompile(`(.*?)[ ._-]*\(?((19|20)\d{2})\)?`)
	nonPortable  = regexp.MustCompile(`[^A-Za-z0-9._ -]`)
	wordSep      = regexp.MustCompile(`[._]`)
)

const (
	sepChars = " ._-"
	strmExt  = ".strm"
)

// Layout decides where pointer files go.
type Layout struct {
	TVRoot     string
	MoviesRoot string
	TVCategory string
	// Categories, when set, override the roots for the categories they name.
	Categories jobs.Categories
}

// Root returns the library root for a category.
func (l Layout) Root(category string) string {
	if c, ok := l.Categories[category]; ok && c.SavePath != "" {
		return c.SavePath
	}
	if category == l.TVCategory {
		return l.TVRoot
	}
	return l.MoviesRoot
}

// IsTV reports whether a category uses episode naming.
func (l Layout) IsTV(category string) bool {
	return category == l.TVCategory
}

// OutputPath derives the pointer file path for one file of a job.
func (l Layout) OutputPath(job *jobs.Job, file upstream.File) (string, error) {
	root := l.Root(job.Category)
	if root == "" {
		return "", fmt.Errorf("no library root for category %q", job.Category)
	}

	var rel string
	if l.IsTV(job.Category) {
		rel = episodePath(job.Name, path.Base(file.Path))
	} else {
		rel = moviePath(job.Name)
	}
	if rel == "" {
		return "", fmt.Errorf("%q leaves no usable directory name: %w", job.Name, ErrPathTraversal)
	}

	out := filepath.Join(root, rel)
	if err := ValidatePath(out, root); err != nil {
		return "", fmt.Errorf("%s: %w", out, err)
	}
	if filepath.Dir(out) == filepath.Clean(root) || filepath.Base(out) == strmExt {
		return "", fmt.Errorf("%s: %w", out, ErrPathTraversal)
	}
	return out, nil
}

// episodePath returns <Show>/Season NN/<name>.strm relative to the TV root.
// The job name is parsed first and the file name second. It returns "" when
// the show name sanitizes to nothing.
func episodePath(name, fileName string) string {
	show, season, episode := name, 1, 1
	m := tvPattern.FindStringSubmatch(name)
	if m == nil {
		m = tvPattern.FindStringSubmatch(fileName)
	}
	if m != nil {
		if s := strings.Trim(m[1], sepChars); s != "" {
			show = s
		}
		season, _ = strconv.Atoi(m[2])
		episode, _ = strconv.Atoi(m[3])
	}

	showDir := show
	if m != nil {
		showDir = wordSep.ReplaceAllString(show, " ")
	}
	showDir = sanitizeComponent(showDir)
	if showDir == "" {
		return ""
	}

	outName := nonPortable.ReplaceAllString(name, "")
	if !tvPattern.MatchString(outName) {
		outName = fmt.Sprintf("%s.S%02dE%02d", show, season, episode)
	}

	return filepath.Join(showDir, fmt.Sprintf("Season %02d", season), sanitizeComponent(outName)+strmExt)
}

// moviePath returns <Title> (<Year>)/<Title> (<Year>).strm relative to the
// movies root, or <Clean Name>/<Clean Name>.strm when no year is present.
// The title runs from the start of the name to the first year that has
// something in front of it, so a leading year stays part of the title.
func moviePath(name string) string {
	for _, m := range moviePattern.FindAllStringSubmatchIndex(name, -1) {
		title := strings.Trim(name[:m[3]], sepChars)
		if title == "" {
			continue
		}
		stem := sanitizeComponent(fmt.Sprintf("%s (%s)", title, name[m[4]:m[5]]))
		return filepath.Join(stem, stem+strmExt)
	}

	stem := sanitizeComponent(wordSep.ReplaceAllString(name, " "))
	if stem == "" {
		return ""
	}
	return filepath.Join(stem, stem+strmExt)
}
