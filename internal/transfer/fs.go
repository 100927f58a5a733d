package transfer

import (
	"errors"
	"path/filepath"

	"github.com/spf13/afero"
)

// Filesystem is the local storage a received file is written to.
type Filesystem interface {
	Exists(path string) (bool, error)
	WriteFile(path string, data []byte) error
}

// Confirmer decides whether an existing local file may be replaced.
type Confirmer interface {
	ConfirmOverwrite(filename string) (bool, error)
}

// AferoFS adapts an afero.Fs to Filesystem.
type AferoFS struct {
	Fs afero.Fs
}

// NewOsFS returns a Filesystem backed by the operating system.
func NewOsFS() *AferoFS {
	return &AferoFS{Fs: afero.NewOsFs()}
}

func (a *AferoFS) Exists(path string) (bool, error) {
	return afero.Exists(a.Fs, path)
}

// WriteFile creates or truncates path, creating missing parent directories.
func (a *AferoFS) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := a.Fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(a.Fs, path, data, 0o644)
}

// localPath is where a file requested as filename is stored. Only the base
// name is used so a server-side path never escapes dir.
func localPath(dir, filename string) string {
	return filepath.Join(dir, filepath.Base(filename))
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(filename string) (bool, error)

func (f ConfirmFunc) ConfirmOverwrite(filename string) (bool, error) { return f(filename) }

var errNoConfirmer = errors.New("file exists and no confirmation is available")
