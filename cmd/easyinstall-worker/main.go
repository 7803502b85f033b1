package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/sugan0927/easyinstall-worker/internal/backup"
	"github.com/sugan0927/easyinstall-worker/internal/config"
	"github.com/sugan0927/easyinstall-worker/internal/model"
	"github.com/sugan0927/easyinstall-worker/internal/notify"
	"github.com/sugan0927/easyinstall-worker/internal/ops"
	"github.com/sugan0927/easyinstall-worker/internal/store"
	"github.com/sugan0927/easyinstall-worker/internal/upload"
	"github.com/sugan0927/easyinstall-worker/internal/utils"
)

func main() {
	app := &cli.App{
		Name:  "easyinstall-worker",
		Usage: "EasyInstall backup dispatch worker: snapshots, multi-destination cloud upload and history bookkeeping",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
			},
			&cli.UintFlag{
				Name:  "user",
				Value: 1,
				Usage: "Operator user id owning credentials and jobs",
			},
		},
		Commands: []*cli.Command{
			backupCommand,
			jobsCommand,
			cloudCommand,
			execCommand,
			installCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var backupCommand = &cli.Command{
	Name:  "backup",
	Usage: "Run backups and inspect history",
	Subcommands: []*cli.Command{
		{
			Name:  "run",
			Usage: "Create a backup and upload it to the job's configured destinations",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "job", Usage: "Backup job id supplying the destination set"},
			},
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				var jobID *uint
				if c.IsSet("job") {
					id := c.Uint("job")
					jobID = &id
				}

				// One run per job at a time; a second trigger fails fast
				// instead of uploading the same artifact twice.
				unlock, err := utils.AcquireLock(utils.JobLockPath(env.cfg.LockDir, jobID))
				if err != nil {
					return fmt.Errorf("could not acquire lock: %w", err)
				}
				defer unlock()

				runner := backup.NewRunner(
					env.cfg.Backup.TempDir,
					&backup.CommandSnapshotter{Command: env.cfg.Backup.SnapshotCommand},
					upload.Adapters(),
					env.credentials,
					env.jobs,
					env.history,
					env.notifier,
				)

				res, err := runner.CreateBackup(c.Context, c.Uint("user"), jobID)
				if err != nil {
					return err
				}

				fmt.Printf("Artifact: %s (%d bytes)\n", res.ArtifactPath, res.Size)
				for _, uri := range res.Locations {
					fmt.Printf("Uploaded: %s\n", uri)
				}
				return nil
			},
		},
		{
			Name:  "history",
			Usage: "List recent backup attempts",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Value: 50},
			},
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				entries, err := env.history.Recent(c.Int("limit"))
				if err != nil {
					return err
				}
				for _, e := range entries {
					job := "-"
					if e.JobID != nil {
						job = fmt.Sprintf("%d", *e.JobID)
					}
					fmt.Printf("#%d job=%s %s %s %d bytes locations=%v\n",
						e.ID, job, e.StartTime.Format(time.RFC3339), e.Status, e.Size, e.Locations())
				}
				return nil
			},
		},
		{
			Name:  "local",
			Usage: "List artifacts kept on local disk",
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				artifacts, err := backup.ListLocalArtifacts(env.cfg.Backup.BackupDir)
				if err != nil {
					return err
				}
				for _, a := range artifacts {
					fmt.Printf("%s %d bytes %s\n", a.Path, a.Size, a.Modified.Format(time.RFC3339))
				}
				return nil
			},
		},
		{
			Name:  "prune",
			Usage: "Delete uploaded objects older than a job's retention window (s3 destinations only)",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "job", Required: true},
			},
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				job, err := env.jobs.Get(c.Uint("job"))
				if err != nil {
					return err
				}
				dests, err := job.Destinations()
				if err != nil {
					return err
				}
				cfg, ok := dests[upload.ProviderS3]
				if !ok {
					return fmt.Errorf("job %d has no s3 destination", job.ID)
				}
				creds, err := env.credentials.Get(c.Uint("user"), upload.ProviderS3)
				if err != nil {
					return err
				}

				adapter := &upload.S3Adapter{}
				deleted, err := adapter.EnforceRetention(c.Context, cfg, creds, job.RetentionDays)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d expired backups\n", deleted)
				return nil
			},
		},
	},
}

var jobsCommand = &cli.Command{
	Name:  "jobs",
	Usage: "Manage backup job definitions",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a backup job",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "type", Value: "full"},
				&cli.StringFlag{Name: "source"},
				&cli.StringFlag{Name: "destination", Usage: "JSON map of provider to destination config"},
				&cli.StringFlag{Name: "schedule", Usage: "Stored for reference; no scheduler evaluates it"},
				&cli.IntFlag{Name: "retention", Value: 30, Usage: "Retention in days"},
			},
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				job := &model.BackupJob{
					Name:          c.String("name"),
					Type:          c.String("type"),
					Source:        c.String("source"),
					Schedule:      c.String("schedule"),
					RetentionDays: c.Int("retention"),
					UserID:        c.Uint("user"),
				}
				if raw := c.String("destination"); raw != "" {
					var dests map[string]map[string]string
					if err := json.Unmarshal([]byte(raw), &dests); err != nil {
						return fmt.Errorf("invalid destination config: %w", err)
					}
					if err := job.SetDestinations(dests); err != nil {
						return err
					}
				}

				if err := env.jobs.Create(job); err != nil {
					return err
				}
				fmt.Printf("Created job %d\n", job.ID)
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "List the user's backup jobs",
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				jobs, err := env.jobs.ListByUser(c.Uint("user"))
				if err != nil {
					return err
				}
				for _, j := range jobs {
					lastRun := "-"
					if j.LastRun != nil {
						lastRun = j.LastRun.Format(time.RFC3339)
					}
					fmt.Printf("#%d %s type=%s status=%s retention=%dd schedule=%q last_run=%s\n",
						j.ID, j.Name, j.Type, j.Status, j.RetentionDays, j.Schedule, lastRun)
				}
				return nil
			},
		},
		{
			Name:  "status",
			Usage: "Toggle a job's status (soft delete via 'deleted')",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "id", Required: true},
				&cli.StringFlag{Name: "set", Required: true, Usage: "active, disabled or deleted"},
			},
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}
				return env.jobs.SetStatus(c.Uint("id"), c.String("set"))
			},
		},
	},
}

var cloudCommand = &cli.Command{
	Name:  "cloud",
	Usage: "Configure cloud upload destinations",
	Subcommands: []*cli.Command{
		{
			Name:      "configure",
			Usage:     "Store credentials for a provider (s3, gdrive or rclone)",
			ArgsUsage: "<provider>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "credentials", Required: true, Usage: "JSON credential blob for the provider"},
				&cli.StringFlag{Name: "name", Usage: "Display name"},
				&cli.BoolFlag{Name: "default", Usage: "Flag this row as the user's default destination"},
			},
			Action: func(c *cli.Context) error {
				provider := c.Args().First()
				switch provider {
				case upload.ProviderS3, upload.ProviderGDrive, upload.ProviderRclone:
				default:
					return fmt.Errorf("unknown provider %q", provider)
				}

				var creds map[string]string
				if err := json.Unmarshal([]byte(c.String("credentials")), &creds); err != nil {
					return fmt.Errorf("invalid credentials: %w", err)
				}

				env, err := prepare(c)
				if err != nil {
					return err
				}
				return env.credentials.Save(c.Uint("user"), provider, creds, c.String("name"), c.Bool("default"))
			},
		},
		{
			Name:  "status",
			Usage: "Show which providers are configured",
			Action: func(c *cli.Context) error {
				env, err := prepare(c)
				if err != nil {
					return err
				}

				status, err := env.credentials.Status(c.Uint("user"))
				if err != nil {
					return err
				}
				providers := make([]string, 0, len(status))
				for p := range status {
					providers = append(providers, p)
				}
				sort.Strings(providers)
				for _, p := range providers {
					fmt.Printf("%s: configured=%t default=%t\n", p, status[p].Configured, status[p].Default)
				}
				return nil
			},
		},
	},
}

var execCommand = &cli.Command{
	Name:      "exec",
	Usage:     "Run an easyinstall subcommand synchronously",
	ArgsUsage: "<subcommand> [args...]",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return fmt.Errorf("subcommand required")
		}

		res := ops.Exec(c.Context, "easyinstall", c.Args().Slice()...)
		fmt.Print(res.Stdout)
		if !res.Success {
			fmt.Fprint(os.Stderr, res.Stderr)
			return cli.Exit("command failed", 1)
		}
		return nil
	},
}

var installCommand = &cli.Command{
	Name:      "install",
	Usage:     "Install WordPress in Docker as a background operation",
	ArgsUsage: "<domain>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "ssl"},
	},
	Action: func(c *cli.Context) error {
		domain := c.Args().First()
		if domain == "" {
			return fmt.Errorf("domain required")
		}

		cfg, err := config.LoadConfig(c.String("config"))
		if err != nil {
			return err
		}

		args := []string{"docker", "wordpress", "install", domain}
		if c.Bool("ssl") {
			args = append(args, "--ssl")
		}

		runner := ops.NewRunner(notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		id := runner.Spawn("easyinstall", args...)
		fmt.Printf("Installation started, operation %s\n", id)

		ev := <-runner.Events()
		runner.Wait()
		if !ev.Success {
			fmt.Fprint(os.Stderr, ev.Output)
			return cli.Exit("installation failed", 1)
		}
		fmt.Print(ev.Output)
		return nil
	},
}

// env bundles the shared dependencies each subcommand needs.
type env struct {
	cfg         *config.Config
	db          *gorm.DB
	credentials *store.Credentials
	jobs        *store.Jobs
	history     *store.History
	notifier    *notify.TelegramSender
}

func prepare(c *cli.Context) (*env, error) {
	configPath := c.String("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// One pooled handle for the whole invocation.
	db, err := gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := store.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &env{
		cfg:         cfg,
		db:          db,
		credentials: store.NewCredentials(db),
		jobs:        store.NewJobs(db),
		history:     store.NewHistory(db),
		notifier:    notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
	}, nil
}
