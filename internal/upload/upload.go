package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider tags. A location URI's scheme is always the provider tag, so the
// provider can be recovered from the URI alone.
const (
	ProviderS3     = "s3"
	ProviderGDrive = "gdrive"
	ProviderRclone = "rclone"
)

// ErrCredentialMissing marks a destination whose provider has no stored
// credentials. It aborts that destination only, never the whole backup.
var ErrCredentialMissing = errors.New("credentials not configured")

// Adapter uploads one local artifact to a provider and reports where it landed.
//
// cfg is the job's per-provider destination config (bucket, remote path, ...);
// creds is the owner's stored credential blob for the provider. Adapters are
// not idempotent: re-uploading the same file duplicates or overwrites
// depending on provider semantics.
type Adapter interface {
	Provider() string
	Upload(ctx context.Context, localPath string, cfg, creds map[string]string) (string, error)
}

// UploadError scopes a transport, auth or API failure to one destination.
type UploadError struct {
	Provider string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Provider, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Adapters returns the registry of known providers.
func Adapters() map[string]Adapter {
	return map[string]Adapter{
		ProviderS3:     &S3Adapter{},
		ProviderGDrive: &DriveAdapter{},
		ProviderRclone: &RcloneAdapter{},
	}
}

// ProviderFromURI recovers the provider tag from a location URI scheme.
func ProviderFromURI(uri string) string {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return ""
	}
	return uri[:idx]
}
