package auth

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
)

// FilePersister stores the token state in a single JSON file
type FilePersister struct {
	path string
}

// NewFilePersister uses path, or ~/.youthloop/auth_tokens.json when empty
func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		usr, err := user.Current()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(usr.HomeDir, ".youthloop", TokenKey+".json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FilePersister{path: path}, nil
}

// Path returns the file location
func (fp *FilePersister) Path() string { return fp.path }

// Load implements Persister
func (fp *FilePersister) Load() ([]byte, error) {
	b, err := os.ReadFile(fp.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// Save implements Persister. The data goes to a temp file in the same
// directory which is then renamed over the target.
func (fp *FilePersister) Save(data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(fp.path), filepath.Base(fp.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if err = f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), fp.path)
}

// Remove implements Persister
func (fp *FilePersister) Remove() error {
	err := os.Remove(fp.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
