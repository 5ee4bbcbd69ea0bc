// Package importer crystallizes a source tree into districts on the map:
// walking a directory, hashing file contents, and tracking dirty files so
// bidirectional sync (importing filesystem changes, exporting in-map edits
// back to disk) only touches what actually changed. Grounded directly on
// the teacher pack's source_importer.rs.
package importer

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// FileRecord tracks one imported file's crystallized state.
type FileRecord struct {
	Path       string // relative to the importer's root
	AbsPath    string
	ModulePath string // Path with its extension stripped and separators dotted
	District   string
	Hash       string
	LineCount  int
	SizeBytes  int64
	Language   string
	LastSync   time.Time
	// GridColumn/GridRow place this file's tile within its district on a
	// fixed-column grid, assigned in path order so a district's layout is
	// stable across re-imports.
	GridColumn int
	GridRow    int
	Dirty      bool
}

// ChangeReport summarizes the result of a sync pass.
type ChangeReport struct {
	Modified []string
	Deleted  []string
	Errors   []string
}

// Manifest describes the imported tree's own package identity: the
// project-level tile every district's files sit alongside. Populated from
// whichever of go.mod, Cargo.toml, or package.json is found at the
// importer's root.
type Manifest struct {
	Name         string
	Version      string
	Dependencies []string
	Features     []string
	Targets      []string
}

// Importer crystallizes a directory tree under Root into in-memory
// FileRecords keyed by their root-relative path.
type Importer struct {
	mu       sync.Mutex
	Root     string
	files    map[string]*FileRecord
	Manifest *Manifest
}

// New constructs an importer rooted at root. The tree is not walked until
// ImportChanges is called.
func New(root string) *Importer {
	return &Importer{Root: root, files: make(map[string]*FileRecord)}
}

// districtFor maps a root-relative path to its district name: the
// top-level directory component, or "root" for top-level files. Path
// components are normalized (NFC) so visually identical but
// differently-encoded directory names collapse to the same district.
func districtFor(relPath string) string {
	normalized := norm.NFC.String(relPath)
	parts := filepathSplitFirst(normalized)
	if parts == "" {
		return "root"
	}
	return parts
}

func filepathSplitFirst(p string) string {
	p = filepath.ToSlash(p)
	if i := indexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// contentHash computes a blake2b-256 hex digest of data.
func contentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// modulePathFor derives a dotted module path from a root-relative file
// path by stripping its extension and replacing path separators with '.'.
func modulePathFor(relPath string) string {
	noExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return strings.ReplaceAll(filepath.ToSlash(noExt), "/", ".")
}

var languageByExt = map[string]string{
	".go":     "go",
	".rs":     "rust",
	".py":     "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".java":   "java",
	".c":      "c",
	".h":      "c-header",
	".cpp":    "cpp",
	".hpp":    "cpp-header",
	".rb":     "ruby",
	".md":     "markdown",
	".toml":   "toml",
	".json":   "json",
	".yaml":   "yaml",
	".yml":    "yaml",
	".sh":     "shell",
	".proto":  "protobuf",
	".sql":    "sql",
	".html":   "html",
	".css":    "css",
}

// languageFor tags a file by its extension, or "" if unrecognized.
func languageFor(relPath string) string {
	return languageByExt[strings.ToLower(filepath.Ext(relPath))]
}

// countLines counts newline-terminated lines in data, counting a trailing
// partial line (no final newline) as one more.
func countLines(data []byte) int {
	n := bytes.Count(data, []byte("\n"))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// ImportChanges walks the tree under i.Root, hashing every regular file and
// updating (or creating) its FileRecord when the content hash changed since
// the last import. Files that disappeared since the last import are
// reported as deleted and removed from tracking. The project manifest tile
// and within-district grid layout are refreshed on every pass.
func (imp *Importer) ImportChanges() (ChangeReport, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	seen := make(map[string]bool)
	var report ChangeReport
	now := time.Now()

	err := filepath.Walk(imp.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(imp.Root, path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		data, err := os.ReadFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			return nil
		}
		hash := contentHash(data)
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		existing, ok := imp.files[rel]
		if !ok {
			imp.files[rel] = &FileRecord{
				Path:       rel,
				AbsPath:    absPath,
				ModulePath: modulePathFor(rel),
				District:   districtFor(rel),
				Hash:       hash,
				LineCount:  countLines(data),
				SizeBytes:  info.Size(),
				Language:   languageFor(rel),
				LastSync:   now,
			}
			report.Modified = append(report.Modified, rel)
			return nil
		}
		existing.AbsPath = absPath
		existing.LastSync = now
		if existing.Hash != hash {
			existing.Hash = hash
			existing.LineCount = countLines(data)
			existing.SizeBytes = info.Size()
			existing.Dirty = false
			report.Modified = append(report.Modified, rel)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("importer: walk %s: %w", imp.Root, err)
	}

	for rel := range imp.files {
		if !seen[rel] {
			delete(imp.files, rel)
			report.Deleted = append(report.Deleted, rel)
		}
	}

	imp.assignGridPositionsLocked()
	imp.Manifest = loadManifest(imp.Root)

	return report, nil
}

const districtGridColumns = 8

// assignGridPositionsLocked lays out every tracked file within its district
// on a fixed-width grid (districtGridColumns wide, fixed row spacing),
// filling row-major in path order so a district's tiles form a stable block
// instead of scattering by hash. Caller must hold imp.mu.
func (imp *Importer) assignGridPositionsLocked() {
	byDistrict := make(map[string][]string)
	for rel, rec := range imp.files {
		byDistrict[rec.District] = append(byDistrict[rec.District], rel)
	}
	for _, rels := range byDistrict {
		sort.Strings(rels)
		for i, rel := range rels {
			rec := imp.files[rel]
			rec.GridColumn = i % districtGridColumns
			rec.GridRow = i / districtGridColumns
		}
	}
}

// cargoManifest mirrors the subset of Cargo.toml this importer reads.
type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
	Features     map[string][]string       `toml:"features"`
	Bin          []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// loadManifest looks for Cargo.toml, go.mod, then package.json at root (in
// that order) and returns the first one found, or nil if the tree carries
// none of them.
func loadManifest(root string) *Manifest {
	if m := loadCargoManifest(filepath.Join(root, "Cargo.toml")); m != nil {
		return m
	}
	if m := loadGoManifest(filepath.Join(root, "go.mod")); m != nil {
		return m
	}
	if m := loadPackageJSONManifest(filepath.Join(root, "package.json")); m != nil {
		return m
	}
	return nil
}

func loadCargoManifest(path string) *Manifest {
	var c cargoManifest
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil
	}
	m := &Manifest{Name: c.Package.Name, Version: c.Package.Version}
	for dep := range c.Dependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	sort.Strings(m.Dependencies)
	for feature := range c.Features {
		m.Features = append(m.Features, feature)
	}
	sort.Strings(m.Features)
	for _, bin := range c.Bin {
		m.Targets = append(m.Targets, bin.Name)
	}
	return m
}

func loadGoManifest(path string) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	m := &Manifest{}
	inRequire := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "module "):
			m.Name = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "go "):
			m.Version = strings.TrimSpace(strings.TrimPrefix(line, "go "))
		case line == "require (":
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire && line != "":
			fields := strings.Fields(line)
			if len(fields) > 0 {
				m.Dependencies = append(m.Dependencies, fields[0])
			}
		case strings.HasPrefix(line, "require ") && !strings.Contains(line, "("):
			fields := strings.Fields(strings.TrimPrefix(line, "require "))
			if len(fields) > 0 {
				m.Dependencies = append(m.Dependencies, fields[0])
			}
		}
	}
	if m.Name == "" {
		return nil
	}
	return m
}

func loadPackageJSONManifest(path string) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	if pkg.Name == "" {
		return nil
	}
	m := &Manifest{Name: pkg.Name, Version: pkg.Version}
	for dep := range pkg.Dependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	for dep := range pkg.DevDependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	sort.Strings(m.Dependencies)
	return m
}

// MarkDirty flags an in-map edit to rel pending export back to disk.
func (imp *Importer) MarkDirty(rel string) error {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	rec, ok := imp.files[rel]
	if !ok {
		return fmt.Errorf("importer: %s not tracked", rel)
	}
	rec.Dirty = true
	return nil
}

// ExportChanges writes the given content back to every dirty file's path on
// disk (content keyed by root-relative path), creating parent directories
// as needed, clearing the dirty flag and refreshing the stored hash and
// last-sync time on success.
func (imp *Importer) ExportChanges(content map[string][]byte) (ChangeReport, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	var report ChangeReport
	for rel, rec := range imp.files {
		if !rec.Dirty {
			continue
		}
		data, ok := content[rel]
		if !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: no content supplied for dirty file", rel))
			continue
		}
		full := filepath.Join(imp.Root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		rec.Hash = contentHash(data)
		rec.LineCount = countLines(data)
		rec.SizeBytes = int64(len(data))
		rec.LastSync = time.Now()
		rec.Dirty = false
		report.Modified = append(report.Modified, rel)
	}
	return report, nil
}

// Files returns a snapshot of all currently tracked file records.
func (imp *Importer) Files() []FileRecord {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	out := make([]FileRecord, 0, len(imp.files))
	for _, rec := range imp.files {
		out = append(out, *rec)
	}
	return out
}

// Districts groups currently tracked files by district name.
func (imp *Importer) Districts() map[string][]string {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	out := make(map[string][]string)
	for rel, rec := range imp.files {
		out[rec.District] = append(out[rec.District], rel)
	}
	return out
}
