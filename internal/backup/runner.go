package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sugan0927/easyinstall-worker/internal/model"
	"github.com/sugan0927/easyinstall-worker/internal/upload"
)

// ErrSnapshot marks a failed snapshot command. It aborts the whole attempt:
// no uploads run and no history row is written.
var ErrSnapshot = errors.New("snapshot command failed")

// Snapshotter produces the backup artifact at the given path.
type Snapshotter interface {
	Snapshot(ctx context.Context, outputPath string) error
}

// CredentialSource resolves a user's stored credentials for one provider.
type CredentialSource interface {
	Get(userID uint, provider string) (map[string]string, error)
}

// JobSource resolves job definitions and stamps run times.
type JobSource interface {
	Get(id uint) (*model.BackupJob, error)
	MarkRun(id uint, at time.Time) error
}

// HistorySink records one entry per backup attempt.
type HistorySink interface {
	Append(entry *model.BackupHistory) error
}

type Notifier interface {
	Send(message string) error
}

// Runner produces one artifact via the snapshot command and fans it out to
// the job's configured destinations.
type Runner struct {
	tempDir  string
	snap     Snapshotter
	adapters map[string]upload.Adapter
	creds    CredentialSource
	jobs     JobSource
	history  HistorySink
	notifier Notifier

	// nowFn is overridable in tests; nil means time.Now.
	nowFn func() time.Time
}

func (r *Runner) now() time.Time {
	if r.nowFn != nil {
		return r.nowFn()
	}
	return time.Now()
}

func NewRunner(tempDir string, snap Snapshotter, adapters map[string]upload.Adapter,
	creds CredentialSource, jobs JobSource, history HistorySink, notifier Notifier) *Runner {
	return &Runner{
		tempDir:  tempDir,
		snap:     snap,
		adapters: adapters,
		creds:    creds,
		jobs:     jobs,
		history:  history,
		notifier: notifier,
	}
}

// Result is what a completed backup attempt hands back to the caller.
// Locations holds only the destinations that succeeded; a destination that
// failed is logged and absent.
type Result struct {
	ArtifactPath string
	Size         int64
	Locations    []string
}

type destinationFailure struct {
	provider string
	err      error
}

// CreateBackup runs one backup attempt for userID, optionally against a job's
// destination set.
//
// A snapshot failure is fatal and persists nothing. Upload failures are
// independent per destination: each is logged and skipped, and the history
// row's status stays "completed" as long as the snapshot itself succeeded.
func (r *Runner) CreateBackup(ctx context.Context, userID uint, jobID *uint) (*Result, error) {
	start := r.now()
	if err := os.MkdirAll(r.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	artifact := filepath.Join(r.tempDir, fmt.Sprintf("backup-%s.tar.gz", start.Format("20060102-150405")))

	if err := r.snap.Snapshot(ctx, artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}

	info, err := os.Stat(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact not produced: %v", ErrSnapshot, err)
	}
	size := info.Size()

	locations := []string{}
	var failures []destinationFailure
	if jobID != nil {
		locations, failures = r.fanOut(ctx, artifact, userID, *jobID)
	}

	entry := &model.BackupHistory{
		JobID:     jobID,
		StartTime: start,
		EndTime:   r.now(),
		Size:      size,
		Status:    "completed",
	}
	if err := entry.SetLocations(locations); err != nil {
		return nil, fmt.Errorf("encode locations: %w", err)
	}
	if err := r.history.Append(entry); err != nil {
		return nil, err
	}

	res := &Result{ArtifactPath: artifact, Size: size, Locations: locations}
	r.sendReport(res, failures)
	return res, nil
}

// fanOut uploads the artifact to every destination configured on the job,
// sequentially. One destination's failure never aborts its siblings.
func (r *Runner) fanOut(ctx context.Context, artifact string, userID, jobID uint) ([]string, []destinationFailure) {
	locations := []string{}
	var failures []destinationFailure

	job, err := r.jobs.Get(jobID)
	if err != nil {
		// Mirrors the unchecked job lookup of the console this replaces:
		// an unknown job id means no uploads, not a failed backup.
		log.Printf("No destination config for job %d: %v", jobID, err)
		return locations, failures
	}

	dests, err := job.Destinations()
	if err != nil {
		log.Printf("Invalid destination config for job %d: %v", jobID, err)
		return locations, failures
	}

	providers := make([]string, 0, len(dests))
	for provider := range dests {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		uri, err := r.uploadOne(ctx, artifact, userID, provider, dests[provider])
		if err != nil {
			log.Printf("Failed to upload to %s: %v", provider, err)
			failures = append(failures, destinationFailure{provider: provider, err: err})
			continue
		}
		log.Printf("Backup uploaded to %s: %s", provider, uri)
		locations = append(locations, uri)
	}

	if err := r.jobs.MarkRun(job.ID, time.Now()); err != nil {
		log.Printf("Failed to stamp last run for job %d: %v", job.ID, err)
	}

	return locations, failures
}

func (r *Runner) uploadOne(ctx context.Context, artifact string, userID uint, provider string, cfg map[string]string) (string, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return "", &upload.UploadError{Provider: provider, Err: fmt.Errorf("unknown provider")}
	}

	creds, err := r.creds.Get(userID, provider)
	if err != nil {
		return "", &upload.UploadError{Provider: provider, Err: err}
	}

	return adapter.Upload(ctx, artifact, cfg, creds)
}

func (r *Runner) sendReport(res *Result, failures []destinationFailure) {
	if r.notifier == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Backup Report [%s]\n", time.Now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Artifact: %s (%s)\n\n", filepath.Base(res.ArtifactPath), humanizeSize(res.Size)))

	for _, uri := range res.Locations {
		sb.WriteString(fmt.Sprintf("✅ %s: %s\n", upload.ProviderFromURI(uri), uri))
	}
	for _, f := range failures {
		sb.WriteString(fmt.Sprintf("❌ %s: Error: %v\n", f.provider, f.err))
	}

	if err := r.notifier.Send(sb.String()); err != nil {
		log.Printf("Failed to send telegram notification: %v", err)
	}
}

func humanizeSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
