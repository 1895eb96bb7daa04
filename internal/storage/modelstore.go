package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// latestPointer is the file naming the currently deployed artifact version.
const latestPointer = "LATEST"

var versionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileModelStore persists classifier artifacts as versioned files under a
// single directory. Writes go through a temp file and rename so a reader
// never observes a partially written artifact.
type FileModelStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileModelStore creates the artifact directory if needed.
func NewFileModelStore(dir string, logger *zap.Logger) (*FileModelStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &FileModelStore{dir: dir, logger: logger}, nil
}

func (m *FileModelStore) artifactPath(version string) string {
	return filepath.Join(m.dir, "classifier-"+version+".json")
}

// Save writes the artifact for version and repoints LATEST at it.
func (m *FileModelStore) Save(ctx context.Context, version string, artifact []byte) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("invalid model version %q", version)
	}

	if err := atomicWrite(m.artifactPath(version), artifact); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	if err := atomicWrite(filepath.Join(m.dir, latestPointer), []byte(version)); err != nil {
		return fmt.Errorf("failed to update latest pointer: %w", err)
	}

	m.logger.Info("Saved model artifact",
		zap.String("version", version),
		zap.Int("bytes", len(artifact)))
	return nil
}

// Load reads the artifact for version.
func (m *FileModelStore) Load(ctx context.Context, version string) ([]byte, error) {
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("invalid model version %q", version)
	}
	data, err := os.ReadFile(m.artifactPath(version))
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %q: %w", version, err)
	}
	return data, nil
}

// LatestVersion returns the version named by the LATEST pointer, or
// os.ErrNotExist if no artifact has ever been saved.
func (m *FileModelStore) LatestVersion(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, latestPointer))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// atomicWrite writes data to path through a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

var _ types.ModelStore = (*FileModelStore)(nil)
