// Package files implements enumeration, download, and deletion of on-disk
// artifacts under the configured temp/ and output/ roots, entirely through
// opaque path tokens so no raw filesystem path ever crosses the HTTP
// boundary from a client.
package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/safety"
)

// Kind classifies an enumerated file by which root it lives under.
type Kind string

const (
	KindOutput Kind = "output"
	KindTemp   Kind = "temp"
)

// Entry is one enumerated file.
type Entry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	PathToken string    `json:"path_token"`
}

// DeleteResult is one token's outcome from DeleteMany.
type DeleteResult struct {
	PathToken string `json:"path_token"`
	Deleted   bool   `json:"deleted"`
	Error     string `json:"error,omitempty"`
}

// ErrEscapesRoots is returned whenever a token resolves outside the
// configured roots.
var ErrEscapesRoots = errors.New("path token escapes configured roots")

// Manager owns the two filesystem roots this package operates under.
type Manager struct {
	OutputDir string
	TempDir   string
}

// New builds a Manager rooted at outputDir/tempDir.
func New(outputDir, tempDir string) *Manager {
	return &Manager{OutputDir: outputDir, TempDir: tempDir}
}

// encodeToken builds an opaque path token from (root kind, root-relative
// path), so the client never sees or supplies a raw filesystem path.
func encodeToken(kind Kind, relPath string) string {
	raw := string(kind) + ":" + filepath.ToSlash(relPath)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// decodeToken reverses encodeToken and resolves it to an absolute path,
// rejecting anything that would escape the manager's roots.
func (m *Manager) decodeToken(token string) (absPath string, kind Kind, err error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed token", ErrEscapesRoots)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: malformed token", ErrEscapesRoots)
	}
	k := Kind(parts[0])
	root := m.rootFor(k)
	if root == "" {
		return "", "", fmt.Errorf("%w: unknown root", ErrEscapesRoots)
	}

	resolved, err := safety.SafeJoin(root, parts[1])
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEscapesRoots, err)
	}
	return resolved, k, nil
}

func (m *Manager) rootFor(kind Kind) string {
	switch kind {
	case KindOutput:
		return m.OutputDir
	case KindTemp:
		return m.TempDir
	default:
		return ""
	}
}

// ListAll enumerates every file under output/ and temp/.
func (m *Manager) ListAll() ([]Entry, error) {
	var entries []Entry
	for _, kind := range []Kind{KindOutput, KindTemp} {
		root := m.rootFor(kind)
		if root == "" {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				if os.IsNotExist(walkErr) {
					return nil
				}
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			taskID := ""
			if segs := strings.Split(filepath.ToSlash(rel), "/"); len(segs) > 1 {
				taskID = segs[0]
			}
			entries = append(entries, Entry{
				ID:        encodeToken(kind, rel),
				TaskID:    taskID,
				Name:      info.Name(),
				Size:      info.Size(),
				Kind:      kind,
				CreatedAt: info.ModTime(),
				PathToken: encodeToken(kind, rel),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", root, err)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

// OpenForDownload resolves token to a readable file and the sanitized
// filename it should be served as. Callers are responsible for closing the
// returned file.
func (m *Manager) OpenForDownload(token string) (f *os.File, downloadName string, err error) {
	absPath, _, err := m.decodeToken(token)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", absPath, err)
	}
	return file, safety.SanitizeFilename(filepath.Base(absPath)), nil
}

// DeleteMany deletes every token in tokens, rejecting (without deleting)
// any token whose resolved path escapes the configured roots.
func (m *Manager) DeleteMany(tokens []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(tokens))
	for _, token := range tokens {
		absPath, _, err := m.decodeToken(token)
		if err != nil {
			results = append(results, DeleteResult{PathToken: token, Deleted: false, Error: err.Error()})
			continue
		}
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			results = append(results, DeleteResult{PathToken: token, Deleted: false, Error: err.Error()})
			continue
		}
		results = append(results, DeleteResult{PathToken: token, Deleted: true})
	}
	return results
}

// DeleteTask removes both output/<taskID>/ and temp/<taskID>/ after a
// final containment check on each.
func (m *Manager) DeleteTask(taskID string) error {
	for _, root := range []string{m.OutputDir, m.TempDir} {
		if root == "" {
			continue
		}
		dir, err := safety.SafeJoin(root, taskID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEscapesRoots, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}
