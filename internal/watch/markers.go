package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/feichai0017/ocr-agent/internal/models"
)

// Marker files drive the bundle state machine. They live inside the
// bundle directory; the producer writes .ready last, after all content
// files are in place.
const (
	markerReady      = ".ready"
	markerProcessing = ".processing"
	markerProcessed  = ".processed"
	markerFailed     = ".failed"
)

// BundleState is the derived state of one inbox bundle.
type BundleState string

const (
	StateIncomplete BundleState = "incomplete"
	StateReady      BundleState = "ready"
	StateProcessing BundleState = "processing"
	StateProcessed  BundleState = "processed"
	StateFailed     BundleState = "failed"
)

// markerFS is the marker-file side of the filesystem. It exists so the
// at-most-one-claim property can be exercised in tests without two real
// processes racing.
type markerFS interface {
	Exists(path string) (bool, error)
	// CreateExclusive creates path, failing with fs.ErrExist when it is
	// already present. This is the claim primitive.
	CreateExclusive(path string) error
	WriteFile(path string, data []byte) error
	Remove(path string) error
}

type osMarkerFS struct{}

func (osMarkerFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (osMarkerFS) CreateExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (osMarkerFS) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func (osMarkerFS) Remove(path string) error {
	return os.Remove(path)
}

// bundleState derives the state from the markers present. Terminal
// markers win over everything, .processing wins over .ready, and a
// bundle with no markers at all is still being produced.
func bundleState(mfs markerFS, dir string) (BundleState, error) {
	ordered := []struct {
		marker string
		state  BundleState
	}{
		{markerProcessed, StateProcessed},
		{markerFailed, StateFailed},
		{markerProcessing, StateProcessing},
		{markerReady, StateReady},
	}
	for _, candidate := range ordered {
		present, err := mfs.Exists(filepath.Join(dir, candidate.marker))
		if err != nil {
			return StateIncomplete, err
		}
		if present {
			return candidate.state, nil
		}
	}
	return StateIncomplete, nil
}

// claimBundle atomically takes ownership of a Ready bundle. Losing the
// race to another watcher instance is the expected outcome, reported as
// ErrBundleClaimConflict.
func claimBundle(mfs markerFS, dir string) error {
	err := mfs.CreateExclusive(filepath.Join(dir, markerProcessing))
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return models.ErrBundleClaimConflict
	}
	return err
}
