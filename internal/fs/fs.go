package fs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

// SymbolLocator finds class and func declarations in file content.
type SymbolLocator interface {
	Locate(path string, content []byte) ([]model.Symbol, error)
}

// Tree is the source tree rooted at a directory. All paths it accepts and
// returns are slash-separated and relative to the root.
type Tree struct {
	root       string
	extensions []string
	ignore     map[string]struct{}
	locator    SymbolLocator
}

// alwaysIgnored directories are never part of the tree.
var alwaysIgnored = []string{".git", ".pfx"}

// NewTree creates a Tree over root. An empty extensions list means every
// file; ignore lists directory names skipped anywhere in the tree.
func NewTree(root string, extensions, ignore []string, locator SymbolLocator) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving tree root %q: %w", root, err)
	}
	t := &Tree{
		root:    abs,
		ignore:  make(map[string]struct{}),
		locator: locator,
	}
	for _, ext := range extensions {
		if ext != "" && ext[0] != '.' {
			ext = "." + ext
		}
		t.extensions = append(t.extensions, ext)
	}
	for _, name := range append(alwaysIgnored, ignore...) {
		t.ignore[name] = struct{}{}
	}
	return t, nil
}

// Root returns the absolute root directory.
func (t *Tree) Root() string { return t.root }

// Abs returns the absolute OS path for a tree-relative path.
func (t *Tree) Abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// Rel converts an absolute or working-directory path to a tree-relative one.
func (t *Tree) Rel(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(t.root, p)
	}
	rel, err := filepath.Rel(t.root, p)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", p, t.root)
	}
	return filepath.ToSlash(rel), nil
}

// Files lists every source file in the tree, sorted.
func (t *Tree) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(t.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := t.ignore[d.Name()]; skip && p != t.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !t.hasAllowedExtension(p) {
			return nil
		}
		rel, err := filepath.Rel(t.root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (t *Tree) hasAllowedExtension(p string) bool {
	if len(t.extensions) == 0 {
		return true
	}
	ext := filepath.Ext(p)
	for _, allowed := range t.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// IsDir reports whether rel is an existing directory.
func (t *Tree) IsDir(rel string) bool {
	info, err := os.Stat(t.Abs(rel))
	return err == nil && info.IsDir()
}

// Exists reports whether rel is an existing regular file.
func (t *Tree) Exists(rel string) bool {
	info, err := os.Stat(t.Abs(rel))
	return err == nil && !info.IsDir()
}

// ReadLines returns the file content split into lines without terminators.
func (t *Tree) ReadLines(rel string) ([]string, error) {
	data, err := os.ReadFile(t.Abs(rel))
	if err != nil {
		return nil, err
	}
	return SplitLines(string(data)), nil
}

// LineCount returns the number of lines in rel.
func (t *Tree) LineCount(rel string) (int, error) {
	f, err := os.Open(t.Abs(rel))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", rel)
	}

	buf := make([]byte, 32*1024)
	count, last := 0, byte('\n')
	for {
		n, err := f.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++ // unterminated final line
	}
	return count, nil
}

// Symbols locates class and func declarations in rel.
func (t *Tree) Symbols(rel string) ([]model.Symbol, error) {
	if t.locator == nil {
		return nil, nil
	}
	data, err := os.ReadFile(t.Abs(rel))
	if err != nil {
		return nil, err
	}
	return t.locator.Locate(rel, data)
}

// Hash returns the SHA256 of rel, or "" if it does not exist.
func (t *Tree) Hash(rel string) (string, error) {
	h, err := GetFileSHA256(t.Abs(rel))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return h, err
}

// SplitLines splits content into lines, ignoring one trailing newline.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// JoinLines is the inverse of SplitLines and always ends with a newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// GetFileSHA256 computes the SHA256 hash of a file.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashLines hashes content exactly as JoinLines would write it.
func HashLines(lines []string) string {
	sum := sha256.Sum256([]byte(JoinLines(lines)))
	return hex.EncodeToString(sum[:])
}

// TrashFile moves path into trashDir, preserving its location relative to baseDir.
func TrashFile(path, trashDir, baseDir string) error {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(trashDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("could not create trash directory: %w", err)
	}
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("could not move %s to trash: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CreateDirs creates the parent directories for every path that needs one.
func CreateDirs(paths []string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "/" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory '%s': %w", dir, err)
		}
	}
	return nil
}

// IsEmpty reports whether dir has no entries.
func IsEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
