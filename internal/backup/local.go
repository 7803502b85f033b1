package backup

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalArtifact describes one artifact kept on local disk.
type LocalArtifact struct {
	Name     string
	Path     string
	Size     int64
	Modified time.Time
}

// ListLocalArtifacts enumerates backup artifacts under dir, recursively.
// Only `.tar.gz` and `.sql` files count; a missing directory yields an empty
// list, not an error.
func ListLocalArtifacts(dir string) ([]LocalArtifact, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var artifacts []LocalArtifact
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".tar.gz") && !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		artifacts = append(artifacts, LocalArtifact{
			Name:     d.Name(),
			Path:     path,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}
