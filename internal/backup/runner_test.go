package backup

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sugan0927/easyinstall-worker/internal/model"
	"github.com/sugan0927/easyinstall-worker/internal/upload"
)

type fakeSnapshotter struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, f.data, 0644)
}

type fakeAdapter struct {
	provider string
	uri      string
	err      error
	uploads  int
}

func (f *fakeAdapter) Provider() string { return f.provider }

func (f *fakeAdapter) Upload(_ context.Context, _ string, _, _ map[string]string) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", &upload.UploadError{Provider: f.provider, Err: f.err}
	}
	return f.uri, nil
}

type fakeCredentials struct {
	byProvider map[string]map[string]string
}

func (f *fakeCredentials) Get(_ uint, provider string) (map[string]string, error) {
	creds, ok := f.byProvider[provider]
	if !ok {
		return nil, upload.ErrCredentialMissing
	}
	return creds, nil
}

type fakeJobs struct {
	jobs    map[uint]*model.BackupJob
	lastRun map[uint]time.Time
}

func (f *fakeJobs) Get(id uint) (*model.BackupJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("backup job not found")
	}
	return job, nil
}

func (f *fakeJobs) MarkRun(id uint, at time.Time) error {
	if f.lastRun == nil {
		f.lastRun = map[uint]time.Time{}
	}
	f.lastRun[id] = at
	return nil
}

type fakeHistory struct {
	entries []*model.BackupHistory
}

func (f *fakeHistory) Append(entry *model.BackupHistory) error {
	f.entries = append(f.entries, entry)
	return nil
}

func jobWithDestinations(t *testing.T, id uint, dests map[string]map[string]string) *model.BackupJob {
	t.Helper()
	job := &model.BackupJob{ID: id, Name: "nightly", Type: "full", Status: "active"}
	if err := job.SetDestinations(dests); err != nil {
		t.Fatalf("SetDestinations: %v", err)
	}
	return job
}

func newTestRunner(t *testing.T, snap Snapshotter, adapters map[string]upload.Adapter,
	creds CredentialSource, jobs JobSource, history HistorySink) *Runner {
	t.Helper()
	return NewRunner(t.TempDir(), snap, adapters, creds, jobs, history, nil)
}

func TestCreateBackup_NoDestinations(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	runner := newTestRunner(t,
		&fakeSnapshotter{data: []byte("artifact")},
		upload.Adapters(),
		&fakeCredentials{},
		&fakeJobs{},
		history,
	)

	res, err := runner.CreateBackup(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(res.Locations) != 0 {
		t.Fatalf("locations = %v, want empty", res.Locations)
	}
	if res.Size != int64(len("artifact")) {
		t.Fatalf("size = %d, want %d", res.Size, len("artifact"))
	}
	if len(history.entries) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history.entries))
	}
	entry := history.entries[0]
	if entry.Status != "completed" {
		t.Fatalf("status = %q, want completed", entry.Status)
	}
	if entry.JobID != nil {
		t.Fatalf("job id = %v, want nil", entry.JobID)
	}
	if got := entry.Locations(); len(got) != 0 {
		t.Fatalf("recorded locations = %v, want empty", got)
	}
}

func TestCreateBackup_PartialUploadFailure(t *testing.T) {
	t.Parallel()

	failing := &fakeAdapter{provider: upload.ProviderGDrive, err: errors.New("quota exceeded")}
	working := &fakeAdapter{provider: upload.ProviderS3, uri: "s3://backups/backup.tar.gz"}

	jobID := uint(7)
	jobs := &fakeJobs{jobs: map[uint]*model.BackupJob{
		jobID: jobWithDestinations(t, jobID, map[string]map[string]string{
			"gdrive": {"folder_id": "abc"},
			"s3":     {"bucket": "backups"},
		}),
	}}
	history := &fakeHistory{}

	runner := newTestRunner(t,
		&fakeSnapshotter{data: []byte("artifact")},
		map[string]upload.Adapter{"gdrive": failing, "s3": working},
		&fakeCredentials{byProvider: map[string]map[string]string{
			"gdrive": {"token": "t"},
			"s3":     {"access_key": "A", "secret_key": "B"},
		}},
		jobs,
		history,
	)

	res, err := runner.CreateBackup(context.Background(), 1, &jobID)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	if len(res.Locations) != 1 || res.Locations[0] != "s3://backups/backup.tar.gz" {
		t.Fatalf("locations = %v, want only the s3 URI", res.Locations)
	}
	if failing.uploads != 1 || working.uploads != 1 {
		t.Fatalf("uploads = (%d, %d), want both attempted", failing.uploads, working.uploads)
	}

	// The aggregate status stays "completed" even though one destination failed.
	if len(history.entries) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history.entries))
	}
	if history.entries[0].Status != "completed" {
		t.Fatalf("status = %q, want completed", history.entries[0].Status)
	}
	if got := history.entries[0].Locations(); len(got) != 1 || got[0] != "s3://backups/backup.tar.gz" {
		t.Fatalf("recorded locations = %v", got)
	}

	if _, ok := jobs.lastRun[jobID]; !ok {
		t.Fatal("job last run was not stamped")
	}
}

func TestCreateBackup_SnapshotFailureWritesNoHistory(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	runner := newTestRunner(t,
		&fakeSnapshotter{err: errors.New("exit status 1")},
		upload.Adapters(),
		&fakeCredentials{},
		&fakeJobs{},
		history,
	)

	_, err := runner.CreateBackup(context.Background(), 1, nil)
	if !errors.Is(err, ErrSnapshot) {
		t.Fatalf("err = %v, want ErrSnapshot", err)
	}
	if len(history.entries) != 0 {
		t.Fatalf("history rows = %d, want 0", len(history.entries))
	}
}

func TestCreateBackup_MissingCredentialsSkipsDestinationOnly(t *testing.T) {
	t.Parallel()

	working := &fakeAdapter{provider: upload.ProviderS3, uri: "s3://backups/backup.tar.gz"}
	unreached := &fakeAdapter{provider: upload.ProviderGDrive, uri: "gdrive://never"}

	jobID := uint(3)
	jobs := &fakeJobs{jobs: map[uint]*model.BackupJob{
		jobID: jobWithDestinations(t, jobID, map[string]map[string]string{
			"gdrive": {"folder_id": "abc"},
			"s3":     {"bucket": "backups"},
		}),
	}}
	history := &fakeHistory{}

	runner := newTestRunner(t,
		&fakeSnapshotter{data: []byte("artifact")},
		map[string]upload.Adapter{"gdrive": unreached, "s3": working},
		&fakeCredentials{byProvider: map[string]map[string]string{
			// gdrive deliberately unconfigured
			"s3": {"access_key": "A", "secret_key": "B"},
		}},
		jobs,
		history,
	)

	res, err := runner.CreateBackup(context.Background(), 1, &jobID)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(res.Locations) != 1 || res.Locations[0] != "s3://backups/backup.tar.gz" {
		t.Fatalf("locations = %v, want only the s3 URI", res.Locations)
	}
	if unreached.uploads != 0 {
		t.Fatal("adapter without credentials should not be invoked")
	}
	if len(history.entries) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history.entries))
	}
}

func TestCreateBackup_UnknownJobSkipsUploads(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	jobID := uint(99)
	runner := newTestRunner(t,
		&fakeSnapshotter{data: []byte("artifact")},
		upload.Adapters(),
		&fakeCredentials{},
		&fakeJobs{},
		history,
	)

	res, err := runner.CreateBackup(context.Background(), 1, &jobID)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(res.Locations) != 0 {
		t.Fatalf("locations = %v, want empty", res.Locations)
	}
	if len(history.entries) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history.entries))
	}
	if got := history.entries[0].JobID; got == nil || *got != jobID {
		t.Fatalf("job id = %v, want %d", got, jobID)
	}
}

func TestCreateBackup_SequentialRunsGetDistinctArtifacts(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	runner := newTestRunner(t,
		&fakeSnapshotter{data: []byte("artifact")},
		upload.Adapters(),
		&fakeCredentials{},
		&fakeJobs{},
		history,
	)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	runner.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := runner.CreateBackup(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("CreateBackup #1: %v", err)
	}
	second, err := runner.CreateBackup(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("CreateBackup #2: %v", err)
	}

	if first.ArtifactPath == second.ArtifactPath {
		t.Fatalf("both runs produced %s, want distinct timestamped paths", first.ArtifactPath)
	}
	if len(history.entries) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history.entries))
	}
}

func TestCommandSnapshotter_Unconfigured(t *testing.T) {
	t.Parallel()

	snap := &CommandSnapshotter{}
	if err := snap.Snapshot(context.Background(), "/tmp/out.tar.gz"); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestCommandSnapshotter_NonzeroExit(t *testing.T) {
	t.Parallel()

	snap := &CommandSnapshotter{Command: []string{"sh", "-c", "echo boom >&2; exit 1"}}
	err := snap.Snapshot(context.Background(), "/tmp/out.tar.gz")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if want := "boom"; !strings.Contains(err.Error(), want) {
		t.Fatalf("err = %q, want diagnostic output %q", err, want)
	}
}
