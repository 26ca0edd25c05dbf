package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
)

// Store persists embedded attachments under the report's assets directory.
// It implements the engine's attachment store contract: Save returns a path
// relative to the report directory, which replaces the raw bytes in the
// scenario result.
type Store struct {
	baseDir string
	seq     atomic.Uint64
}

// NewStore creates a store rooted at outputDir/assets.
func NewStore(outputDir string) *Store {
	return &Store{baseDir: filepath.Join(outputDir, "assets")}
}

// Save writes the attachment for the given scenario and returns its path
// relative to the report directory. Filenames combine a millisecond
// timestamp with a sequence number so rapid saves never collide.
func (s *Store) Save(scenarioID string, data []byte, resourceType core.ResourceType) (string, error) {
	dir := filepath.Join(s.baseDir, scenarioID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create assets dir: %w", err)
	}

	name := fmt.Sprintf("%d_%03d", time.Now().UnixMilli(), s.seq.Add(1)%1000)
	if ext := resourceType.Extension(); ext != "" {
		name += "." + ext
	}
	absPath := filepath.Join(dir, name)
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return filepath.Join("assets", scenarioID, name), nil
}
