package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lyallcooper/treescan/internal/tree"
)

// walker enumerates the files below a set of selected paths, depth-first in
// the lister's order, checking for a stop request at every directory and
// before every file.
type walker struct {
	lister  tree.Lister
	root    string
	stopped func() bool
	onError func(failure *ItemFailure)
}

// walk calls visit for every file. It returns errStopped after a stop
// request and an ErrFatalScan error when the tree root disappears. A
// selected path that is gone is reported through onError and skipped.
func (w *walker) walk(paths []string, visit func(path string)) error {
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			if err := w.checkRoot(); err != nil {
				return err
			}
			w.onError(&ItemFailure{Path: p, Err: err})
			continue
		}

		if info.IsDir() {
			if err := w.walkDir(p, visit); err != nil {
				return err
			}
			continue
		}

		if w.stopped() {
			return errStopped
		}
		visit(p)
	}
	return nil
}

func (w *walker) walkDir(dir string, visit func(path string)) error {
	if w.stopped() {
		return errStopped
	}

	entries, err := w.lister.List(dir)
	if err != nil {
		if err := w.checkRoot(); err != nil {
			return err
		}
		w.onError(&ItemFailure{Path: dir, Err: err})
		return nil
	}

	for _, e := range entries {
		p := filepath.Join(dir, e.Name)
		if e.IsDir {
			if err := w.walkDir(p, visit); err != nil {
				return err
			}
			continue
		}

		if w.stopped() {
			return errStopped
		}
		visit(p)
	}
	return nil
}

// checkRoot returns an ErrFatalScan error if the tree root is gone
func (w *walker) checkRoot() error {
	if _, err := os.Stat(w.root); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: root %s no longer exists", ErrFatalScan, w.root)
	}
	return nil
}
