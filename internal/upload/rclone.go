package upload

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// RcloneAdapter delegates the upload to the rclone CLI, which carries its own
// remote configuration. Destination config keys: remote, path (both required).
// The stored credential blob is not consulted beyond existing; rclone resolves
// the remote from its own config file.
type RcloneAdapter struct{}

func (a *RcloneAdapter) Provider() string { return ProviderRclone }

func (a *RcloneAdapter) Upload(ctx context.Context, localPath string, cfg, creds map[string]string) (string, error) {
	remote := cfg["remote"]
	remotePath := cfg["path"]
	if remote == "" || remotePath == "" {
		return "", &UploadError{Provider: ProviderRclone, Err: fmt.Errorf("destination config missing remote or path")}
	}

	dest := fmt.Sprintf("%s:%s", remote, remotePath)
	cmd := exec.CommandContext(ctx, "rclone", "copy", localPath, dest)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", &UploadError{
			Provider: ProviderRclone,
			Err:      fmt.Errorf("rclone copy failed: %w, output: %s", err, strings.TrimSpace(string(output))),
		}
	}

	return fmt.Sprintf("rclone://%s/%s", dest, filepath.Base(localPath)), nil
}
