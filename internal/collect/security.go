package collect

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"siteaudit/internal/config"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

const securityScanTimeout = 2 * time.Minute

// SecurityScan shells out to the optional external scanner when one is
// configured. The scanner is advisory: a missing binary, non-zero exit,
// or timeout all degrade to a soft error, never a run failure.
func (c *Collectors) SecurityScan(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.SecurityScanFacts] {
	command := c.cfg.SecurityScanCommand
	if command == "" {
		return failf[snapshot.SecurityScanFacts]("no security scanner configured")
	}
	if c.cfg.SecurityScope != config.SecurityFull {
		return failf[snapshot.SecurityScanFacts]("security scope %q does not run the external scanner", c.cfg.SecurityScope)
	}

	parts := strings.Fields(command)
	if _, err := exec.LookPath(parts[0]); err != nil {
		return failf[snapshot.SecurityScanFacts]("scanner %q not found in PATH", parts[0])
	}

	ctx, cancel := context.WithTimeout(ctx, securityScanTimeout)
	defer cancel()

	args := append(parts[1:], id.NormalizedURL)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return failf[snapshot.SecurityScanFacts]("scanner failed: %v: %s", err, firstLine(stderr.String()))
	}

	out := stdout.String()
	facts := snapshot.SecurityScanFacts{
		Tool:   parts[0],
		Output: truncate(out, 64<<10),
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Scanners in this mode emit one finding per line.
		facts.Findings = append(facts.Findings, line)
	}
	return snapshot.OK(facts)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
