package backup

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandSnapshotter runs the external snapshot producer. The contract is
// exit code only: zero means the artifact exists at the output path, nonzero
// is fatal, and stdout/stderr are diagnostic text.
type CommandSnapshotter struct {
	// Command is the producer argv, e.g. {"easyinstall", "backup"}; the
	// artifact path is appended as `--output <path>`.
	Command []string
}

func (c *CommandSnapshotter) Snapshot(ctx context.Context, outputPath string) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("snapshot command not configured")
	}

	args := append(append([]string{}, c.Command[1:]...), "--output", outputPath)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", c.Command[0], err, string(output))
	}
	return nil
}
