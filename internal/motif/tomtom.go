package motif

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/signalnine/motifsweep/internal/docker"
)

// TableName is the file Tomtom writes into its output directory.
const TableName = "tomtom.tsv"

type TomtomOpts struct {
	Binary   string
	Image    string
	Args     []string
	Query    string
	Database string
	OutDir   string
	Timeout  time.Duration
}

// TablePath is where the Tomtom table for the configuration name lands
// under filterDir.
func TablePath(filterDir, name string) string {
	return filepath.Join(filterDir, name, TableName)
}

// Command builds the Tomtom argument list for the given paths.
func Command(binary string, args []string, query, database, outDir string) []string {
	cmd := []string{binary}
	cmd = append(cmd, args...)
	return append(cmd, "-oc", outDir, query, database)
}

// RunTomtom compares the query motif file against the database, locally or
// in opts.Image when set, and returns the path of the result table.
func RunTomtom(ctx context.Context, opts *TomtomOpts) (string, error) {
	if opts.Database == "" {
		return "", fmt.Errorf("tomtom: no motif database configured")
	}
	if _, err := os.Stat(opts.Query); err != nil {
		return "", fmt.Errorf("tomtom: query motifs: %w", err)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("creating tomtom output dir: %w", err)
	}
	if opts.Image != "" {
		if err := runInContainer(ctx, opts); err != nil {
			return "", err
		}
	} else if err := runLocal(ctx, opts); err != nil {
		return "", err
	}
	table := filepath.Join(opts.OutDir, TableName)
	if _, err := os.Stat(table); err != nil {
		return "", fmt.Errorf("tomtom produced no table: %w", err)
	}
	return table, nil
}

func runLocal(ctx context.Context, opts *TomtomOpts) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	argv := Command(opts.Binary, opts.Args, opts.Query, opts.Database, opts.OutDir)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running tomtom: %s: %w", out, err)
	}
	return nil
}

func runInContainer(ctx context.Context, opts *TomtomOpts) error {
	query, err := filepath.Abs(opts.Query)
	if err != nil {
		return fmt.Errorf("resolving query path: %w", err)
	}
	db, err := filepath.Abs(opts.Database)
	if err != nil {
		return fmt.Errorf("resolving database path: %w", err)
	}
	out, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return fmt.Errorf("resolving output dir: %w", err)
	}
	binary := opts.Binary
	if binary == "" {
		binary = "tomtom"
	}
	res, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   opts.Image,
		Command: Command(binary, opts.Args, "/query/"+filepath.Base(query), "/db/"+filepath.Base(db), "/out"),
		Timeout: opts.Timeout,
		Mounts: []docker.Mount{
			{Source: filepath.Dir(query), Target: "/query", ReadOnly: true},
			{Source: filepath.Dir(db), Target: "/db", ReadOnly: true},
			{Source: out, Target: "/out"},
		},
		UserID: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	})
	if err != nil {
		return fmt.Errorf("running tomtom container: %w", err)
	}
	if res.TimedOut {
		return fmt.Errorf("tomtom timed out after %s", opts.Timeout)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tomtom exited %d: %s", res.ExitCode, res.Logs)
	}
	return nil
}
