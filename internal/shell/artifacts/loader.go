// Package artifacts loads compiled contract artifacts from disk.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/artpar/chainhost/internal/core/artifact"
)

var (
	ErrNoArtifacts        = errors.New("no artifacts found")
	ErrDuplicateArtifact  = errors.New("duplicate artifact name")
	ErrArtifactsDirAccess = errors.New("artifacts directory not readable")
)

// LoadDir loads every artifact under dir. See LoadFS.
func LoadDir(dir string) (artifact.Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactsDirAccess, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrArtifactsDirAccess, dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS walks fsys for *.json artifacts. Truffle's flat build/contracts
// layout and the nested Hardhat and Foundry layouts are all accepted.
// Hardhat debug files and build-info directories are skipped.
func LoadFS(fsys fs.FS) (artifact.Set, error) {
	set := artifact.Set{}
	sources := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return fs.SkipDir
			}
			return nil
		}
		if !isArtifactFile(d.Name()) {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		a, err := artifact.Parse(strings.TrimSuffix(d.Name(), ".json"), data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if prev, ok := sources[a.Name]; ok {
			return fmt.Errorf("%w: %s in %s and %s", ErrDuplicateArtifact, a.Name, prev, p)
		}
		sources[a.Name] = p
		set[a.Name] = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(set) == 0 {
		return nil, ErrNoArtifacts
	}
	return set, nil
}

func isArtifactFile(name string) bool {
	return path.Ext(name) == ".json" && !strings.HasSuffix(name, ".dbg.json")
}
