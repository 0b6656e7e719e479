// Package gitops checks out the trainer model-zoo repository a sweep runs against.
package gitops

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var validRef = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func validate(repo, tag string) error {
	if repo == "" || strings.HasPrefix(repo, "-") {
		return fmt.Errorf("invalid repo %q", repo)
	}
	if !validRef.MatchString(tag) || strings.Contains(tag, "..") {
		return fmt.Errorf("invalid tag %q", tag)
	}
	return nil
}

// CloneAndCheckout shallow-clones repo at tag into dest.
func CloneAndCheckout(repo, tag, dest string) error {
	if err := validate(repo, tag); err != nil {
		return err
	}
	cmd := exec.Command("git", "clone", "--branch", tag, "--depth", "1", "--", repo, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %s: %w", out, err)
	}
	return nil
}

// HeadCommit returns the commit checked out in repoDir.
func HeadCommit(repoDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
