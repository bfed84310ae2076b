// Package recording locates meeting recording artifacts on the local
// filesystem. Storage locations vary across OS versions and user
// configuration, so discovery is deliberately permissive: the Zoom
// client config is consulted first, then a set of conventional
// directories is searched as well.
package recording

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// mediaExtensions is the fixed extension set scanned for. The .zoom
// entry is the provider's proprietary container; it is discovered so
// the pipeline can tell the user to convert it, rather than silently
// ignoring the file.
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4a":  true,
	".mp3":  true,
	".zoom": true,
}

// Candidate is a filesystem artifact that might be the media for a
// meeting. Produced transiently by scanning, never persisted.
type Candidate struct {
	Path       string
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
	Extension  string
}

// SizeMB returns the candidate size in megabytes.
func (c *Candidate) SizeMB() float64 {
	return float64(c.SizeBytes) / 1024 / 1024
}

// Scanner enumerates candidate recording files across search roots.
type Scanner struct {
	home string
	goos string
	log  *slog.Logger
}

// NewScanner creates a scanner rooted at the current user's home
// directory.
func NewScanner(log *slog.Logger) *Scanner {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Scanner{home: home, goos: runtime.GOOS, log: log}
}

// clientConfigPath returns the Zoom client's config file location for
// the current OS, or "" when the OS is not recognized.
func (s *Scanner) clientConfigPath() string {
	switch s.goos {
	case "darwin":
		return filepath.Join(s.home, "Library", "Application Support", "zoom.us", "Zoom.us.ini")
	case "windows":
		return filepath.Join(s.home, "AppData", "Roaming", "Zoom", "data", "Zoom.us.ini")
	case "linux":
		return filepath.Join(s.home, ".config", "zoom", "Zoom.us.ini")
	default:
		s.log.Warn("unsupported OS for client config lookup", "goos", s.goos)
		return ""
	}
}

// defaultRoots returns the conventional recording directories for the
// current OS. Only Documents/Zoom is provider-specific; Desktop and
// Downloads are included because users move recordings around.
func (s *Scanner) defaultRoots() []string {
	roots := []string{
		filepath.Join(s.home, "Documents", "Zoom"),
		filepath.Join(s.home, "Desktop"),
		filepath.Join(s.home, "Downloads"),
	}
	if s.goos == "darwin" {
		roots = append(roots,
			filepath.Join(s.home, "Movies", "Zoom"),
			filepath.Join(s.home, "Movies"),
		)
	} else {
		roots = append(roots,
			filepath.Join(s.home, "Videos", "Zoom"),
			filepath.Join(s.home, "Videos"),
		)
	}
	return roots
}

// configuredRoot reads the recording path from the Zoom client config
// file. Returns "" when the file or keys are absent or unreadable;
// that is an expected state, not an error.
func (s *Scanner) configuredRoot() string {
	cfgPath := s.clientConfigPath()
	if cfgPath == "" {
		return ""
	}
	if _, err := os.Stat(cfgPath); err != nil {
		return ""
	}

	cfg, err := ini.Load(cfgPath)
	if err != nil {
		s.log.Warn("failed to read client config", "path", cfgPath, "error", err)
		return ""
	}

	for _, key := range []struct{ section, name string }{
		{"General", "ZoomPath"},
		{"Recording", "LocalRecordingPath"},
	} {
		val := cfg.Section(key.section).Key(key.name).String()
		if val == "" {
			continue
		}
		if info, err := os.Stat(val); err == nil && info.IsDir() {
			s.log.Info("recording root from client config", "path", val)
			return val
		}
	}
	return ""
}

// ResolveSearchRoots returns every existing directory worth searching:
// the configured root (when readable) followed by the OS defaults.
func (s *Scanner) ResolveSearchRoots() []string {
	var roots []string
	seen := map[string]bool{}

	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			roots = append(roots, dir)
			seen[dir] = true
		}
	}

	add(s.configuredRoot())
	for _, dir := range s.defaultRoots() {
		add(dir)
	}

	if len(roots) == 0 {
		s.log.Warn("no recording directories found")
	}
	return roots
}

// RecordingRoot returns the single most likely storage directory, used
// for diagnostics when nothing is found.
func (s *Scanner) RecordingRoot() string {
	if root := s.configuredRoot(); root != "" {
		return root
	}
	for _, dir := range s.defaultRoots() {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// Scan recursively searches roots for media files.
//
// sinceHours=nil disables the time filter entirely. minSizeMB
// filters out control/metadata files
// that share extensions with real media. Results are deduplicated by
// path and sorted newest-first.
func (s *Scanner) Scan(roots []string, sinceHours *int, minSizeMB float64) []Candidate {
	var cutoff time.Time
	if sinceHours != nil {
		cutoff = time.Now().Add(-time.Duration(*sinceHours) * time.Hour)
	}
	minSizeBytes := int64(minSizeMB * 1024 * 1024)

	var candidates []Candidate
	seen := map[string]bool{}

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable subtree: skip it, keep walking the rest.
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if !mediaExtensions[ext] {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				s.log.Warn("failed to stat candidate", "path", path, "error", err)
				return nil
			}
			if info.Size() < minSizeBytes {
				return nil
			}
			if sinceHours != nil && info.ModTime().Before(cutoff) {
				return nil
			}

			resolved := path
			if abs, err := filepath.Abs(path); err == nil {
				resolved = abs
			}
			if seen[resolved] {
				return nil
			}
			seen[resolved] = true

			candidates = append(candidates, Candidate{
				Path:       resolved,
				Name:       d.Name(),
				SizeBytes:  info.Size(),
				ModifiedAt: info.ModTime(),
				Extension:  ext,
			})
			return nil
		})
		if err != nil {
			s.log.Warn("scan failed for root", "root", root, "error", err)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ModifiedAt.After(candidates[j].ModifiedAt)
	})

	s.log.Debug("scan complete", "roots", len(roots), "candidates", len(candidates))
	return candidates
}
