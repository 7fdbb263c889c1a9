package history

import (
	"bytes"
	"os/exec"
	"strings"
)

// ResolveGitCommit returns the short commit hash of HEAD in projectRoot,
// or "" when the project is not a git checkout or git is unavailable.
// Runs are tagged with the commit so trend reports can be lined up
// against source changes.
func ResolveGitCommit(projectRoot string) string {
	cmd := exec.Command("git", "-C", projectRoot, "rev-parse", "--short=12", "HEAD")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(stdout.String())
}
