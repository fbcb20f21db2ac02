// Package host defines the collaborators the importer talks to: the file
// system view of the analyzed project and the sink that receives resources,
// measures and findings.
package host

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Benny93/metrigraph/internal/resource"
)

// FileSystem answers whether a path reported by the analyzer is part of
// this analysis.
type FileSystem interface {
	// Relative returns the project relative, slash separated form of path.
	// ok is false when the path is outside the project or not indexed.
	// The project base directory itself is "".
	Relative(path string) (rel string, ok bool)
}

// DefaultCacheSize is the number of normalized paths ProjectFileSystem keeps.
const DefaultCacheSize = 4096

// Source extensions indexed per language key.
var languageExtensions = map[string][]string{
	"py": {".py"},
}

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	".metrigraph/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".eggs/",
	"*.egg-info/",
	".pytest_cache/",
	".mypy_cache/",
	"htmlcov/",
	"*.pyc",
	"*.pyo",
	"*.pyd",
	".DS_Store",
	"Thumbs.db",
}

// ProjectFileSystemOptions configures NewProjectFileSystem.
type ProjectFileSystemOptions struct {
	// Language restricts indexed files to the language's extensions.
	// Empty indexes every file.
	Language string

	// CacheSize bounds the path normalization cache. Zero uses
	// DefaultCacheSize.
	CacheSize int
}

type lookup struct {
	rel string
	ok  bool
}

// ProjectFileSystem indexes the files below a base directory, honoring
// default ignore patterns and the project's .gitignore.
type ProjectFileSystem struct {
	baseDir string
	files   map[string]struct{}
	dirs    map[string]struct{}
	cache   *lru.Cache[string, lookup]
}

// NewProjectFileSystem walks baseDir and indexes its files and directories.
func NewProjectFileSystem(baseDir string, opts ProjectFileSystemOptions) (*ProjectFileSystem, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base dir: %w", err)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, lookup](size)
	if err != nil {
		return nil, fmt.Errorf("creating path cache: %w", err)
	}

	patterns, err := loadGitignore(abs)
	if err != nil {
		return nil, fmt.Errorf("loading .gitignore: %w", err)
	}

	pfs := &ProjectFileSystem{
		baseDir: abs,
		files:   make(map[string]struct{}),
		dirs:    map[string]struct{}{"": {}},
		cache:   cache,
	}
	if err := pfs.walk(patterns, languageExtensions[strings.ToLower(opts.Language)]); err != nil {
		return nil, fmt.Errorf("walking %s: %w", abs, err)
	}
	return pfs, nil
}

// BaseDir returns the absolute project directory.
func (p *ProjectFileSystem) BaseDir() string {
	return p.baseDir
}

// Relative implements FileSystem.
func (p *ProjectFileSystem) Relative(name string) (string, bool) {
	if l, ok := p.cache.Get(name); ok {
		return l.rel, l.ok
	}

	rel, ok := p.resolve(name)
	p.cache.Add(name, lookup{rel: rel, ok: ok})
	return rel, ok
}

func (p *ProjectFileSystem) resolve(name string) (string, bool) {
	rel, ok := normalize(p.baseDir, name)
	if !ok {
		return "", false
	}
	if _, ok := p.files[rel]; ok {
		return rel, true
	}
	if _, ok := p.dirs[rel]; ok {
		return rel, true
	}
	return "", false
}

// normalize turns an absolute or base relative path into a clean project
// relative one. ok is false for paths outside baseDir.
func normalize(baseDir, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	rel := name
	if filepath.IsAbs(name) {
		r, err := filepath.Rel(baseDir, name)
		if err != nil {
			return "", false
		}
		rel = r
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", false
	}
	return resource.CleanRelative(rel), true
}

// Files returns the indexed files, sorted.
func (p *ProjectFileSystem) Files() []string {
	result := make([]string, 0, len(p.files))
	for f := range p.files {
		result = append(result, f)
	}
	sort.Strings(result)
	return result
}

func (p *ProjectFileSystem) walk(patterns []gitignore.Pattern, extensions []string) error {
	allPatterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(patterns))
	for _, pat := range defaultIgnorePatterns {
		allPatterns = append(allPatterns, gitignore.ParsePattern(pat, nil))
	}
	allPatterns = append(allPatterns, patterns...)
	matcher := gitignore.NewMatcher(allPatterns)

	return filepath.WalkDir(p.baseDir, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if current == p.baseDir {
			return nil
		}

		relPath, err := filepath.Rel(p.baseDir, current)
		if err != nil {
			return err
		}
		parts := splitPath(relPath)

		if d.IsDir() {
			if d.Name() == ".git" || matcher.Match(parts, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name(), extensions) || matcher.Match(parts, false) {
			return nil
		}

		rel := filepath.ToSlash(relPath)
		p.files[rel] = struct{}{}
		for dir := filepath.ToSlash(filepath.Dir(relPath)); dir != "." && dir != ""; dir = pathDir(dir) {
			p.dirs[dir] = struct{}{}
		}
		return nil
	})
}

// loadGitignore loads .gitignore patterns from the project root.
func loadGitignore(root string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func splitPath(rel string) []string {
	return strings.Split(rel, string(filepath.Separator))
}

func pathDir(dir string) string {
	i := strings.LastIndex(dir, "/")
	if i < 0 {
		return ""
	}
	return dir[:i]
}

// StaticFileSystem is a fixed FileSystem over known relative paths.
type StaticFileSystem struct {
	baseDir string
	known   map[string]struct{}
}

// NewStaticFileSystem returns a FileSystem that knows files (and their
// parent directories) below baseDir. Paths are project relative.
func NewStaticFileSystem(baseDir string, files ...string) *StaticFileSystem {
	s := &StaticFileSystem{
		baseDir: filepath.Clean(baseDir),
		known:   map[string]struct{}{"": {}},
	}
	for _, f := range files {
		rel := resource.CleanRelative(f)
		s.known[rel] = struct{}{}
		for dir := pathDir(rel); dir != ""; dir = pathDir(dir) {
			s.known[dir] = struct{}{}
		}
	}
	return s
}

// Relative implements FileSystem.
func (s *StaticFileSystem) Relative(name string) (string, bool) {
	rel, ok := normalize(s.baseDir, name)
	if !ok {
		return "", false
	}
	if _, ok := s.known[rel]; ok {
		return rel, true
	}
	return "", false
}
