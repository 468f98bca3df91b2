// Package executor provides the embedded execution drivers.
//
// The deno and python drivers are embedded at build time and extracted to
// a temporary directory on first use, so the scriptrun binary is
// self-contained apart from the interpreters themselves.
package executor

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pithecene-io/scriptrun/types"
)

//go:embed bundle/driver.mjs bundle/driver.py
var bundle embed.FS

// Driver names inside the bundle.
const (
	DriverDeno   = "driver.mjs"
	DriverPython = "driver.py"
)

// extractOnce ensures extraction happens only once per process.
var (
	extractOnce  sync.Once
	extractedDir string
	extractErr   error
)

// DriverFor returns the bundled driver used for a language, or "" when the
// language runs on the builtin driver. JavaScript uses deno only when
// useDeno is set.
func DriverFor(lang types.Language, useDeno bool) string {
	switch lang {
	case types.LanguagePython:
		return DriverPython
	case types.LanguageTypeScript:
		return DriverDeno
	case types.LanguageJavaScript:
		if useDeno {
			return DriverDeno
		}
	}
	return ""
}

// Drivers lists the embedded driver names.
func Drivers() []string {
	entries, err := bundle.ReadDir("bundle")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Checksum returns the SHA256 checksum over all embedded drivers.
func Checksum() string {
	h := sha256.New()
	for _, name := range Drivers() {
		data, _ := bundle.ReadFile("bundle/" + name)
		h.Write([]byte(name))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DriverPath returns the on-disk path of an embedded driver, extracting the
// bundle on first call.
func DriverPath(name string) (string, error) {
	extractOnce.Do(func() {
		extractedDir, extractErr = extract()
	})
	if extractErr != nil {
		return "", extractErr
	}
	path := filepath.Join(extractedDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("unknown driver %q: %w", name, err)
	}
	return path, nil
}

// extract writes the bundle to a temp directory named by version and
// checksum so multiple versions can coexist.
func extract() (string, error) {
	dirName := fmt.Sprintf("scriptrun-drivers-%s-%s", types.Version, Checksum()[:16])
	dir := filepath.Join(os.TempDir(), dirName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create driver directory: %w", err)
	}

	for _, name := range Drivers() {
		data, err := bundle.ReadFile("bundle/" + name)
		if err != nil {
			return "", fmt.Errorf("failed to read embedded driver %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		// Idempotent: skip files already extracted by an earlier process.
		if info, err := os.Stat(path); err == nil && info.Size() == int64(len(data)) {
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write driver %s: %w", name, err)
		}
	}

	return dir, nil
}

// Cleanup removes the extracted driver directory.
// Safe to call multiple times or if extraction never happened.
func Cleanup() error {
	if extractedDir == "" {
		return nil
	}
	if err := os.RemoveAll(extractedDir); err != nil {
		return fmt.Errorf("failed to cleanup drivers: %w", err)
	}
	return nil
}
