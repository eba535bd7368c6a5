package job

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/sync/errgroup"
)

const copyConcurrency = 4

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeFilename keeps the base name portable across filesystems.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "input"
	}
	return name
}

// AddInputs copies the given files into the job's input directory and
// returns the destination paths in the same order as the sources.
// Name collisions get a numeric suffix so no source overwrites another.
func AddInputs(layout Layout, sources []string) ([]string, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	// Destination names are assigned up front, serially, so the parallel
	// copies below never race on a name.
	taken := map[string]bool{}
	if entries, err := os.ReadDir(layout.InputDir()); err == nil {
		for _, e := range entries {
			taken[e.Name()] = true
		}
	}

	dests := make([]string, len(sources))
	for i, src := range sources {
		name := sanitizeFilename(src)
		candidate := name
		ext := filepath.Ext(name)
		stem := name[:len(name)-len(ext)]
		for n := 1; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		taken[candidate] = true
		dests[i] = filepath.Join(layout.InputDir(), candidate)
	}

	var g errgroup.Group
	g.SetLimit(copyConcurrency)
	for i := range sources {
		src, dst := sources[i], dests[i]
		g.Go(func() error {
			if err := copyFile(src, dst); err != nil {
				return fmt.Errorf("failed to copy %s: %w", src, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dests, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
