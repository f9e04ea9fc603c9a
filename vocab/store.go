package vocab

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/textprep/textprep/tokenizers/api"
)

// Format selects the on-disk encoding for Save.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

// String returns the flag-friendly name of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBinary:
		return "binary"
	}
	return "unknown"
}

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "binary":
		return FormatBinary, nil
	}
	return 0, errors.Wrapf(api.ErrInvalidConfig, "unknown vocabulary format %q (want json or binary)", s)
}

// Save writes the vocabulary to path atomically: the bytes go to a
// temporary file beside path and are renamed over path while holding
// path+".lock". Concurrent savers each write their own temporary file, so
// loaders never observe a half-written vocabulary.
func Save(path string, v *Vocabulary, format Format) error {
	if format != FormatJSON && format != FormatBinary {
		return errors.Wrapf(api.ErrInvalidConfig, "unknown vocabulary format %d", format)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating directory for %q", path)
		}
	}

	lockPath := path + ".lock"
	var mainErr error
	errLock := withFileLock(lockPath, func() {
		f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.partial")
		if err != nil {
			mainErr = errors.Wrapf(err, "creating temporary vocabulary file in %q", filepath.Dir(path))
			return
		}
		tmpPath := f.Name()
		var closed bool
		defer func() {
			// On failure, close and drop the unfinished temporary file.
			if !closed {
				if err := f.Close(); err != nil {
					klog.Warningf("Failed closing temporary file %q: %v", tmpPath, err)
				}
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
				}
			}
		}()

		switch format {
		case FormatJSON:
			mainErr = WriteJSON(f, v)
		case FormatBinary:
			mainErr = WriteBinary(f, v)
		}
		if mainErr != nil {
			mainErr = errors.WithMessagef(mainErr, "while writing vocabulary to %q", tmpPath)
			return
		}

		if err := f.Sync(); err != nil {
			mainErr = errors.Wrapf(err, "syncing temporary vocabulary file %q", tmpPath)
			return
		}
		closed = true
		if err := f.Close(); err != nil {
			mainErr = errors.Wrapf(err, "closing temporary vocabulary file %q", tmpPath)
			return
		}
		if err := os.Rename(tmpPath, path); err != nil {
			mainErr = errors.Wrapf(err, "moving vocabulary file %q to %q", tmpPath, path)
			return
		}

		// The target exists now, the lock file served its purpose.
		if err := os.Remove(lockPath); err != nil {
			klog.Warningf("Failed removing lock file %q: %v", lockPath, err)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to save vocabulary", lockPath)
	}
	klog.V(1).Infof("Saved vocabulary %s (%d tokens, %s) to %s", v.Fingerprint(), v.Size(), format, path)
	return nil
}

// Load reads a vocabulary saved in either format, sniffing the leading bytes
// to pick the decoder.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening vocabulary file %q", path)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	head, err := br.Peek(len(binaryMagic))
	if err != nil {
		return nil, errors.Wrapf(err, "reading vocabulary header from %q", path)
	}

	var v *Vocabulary
	if string(head) == binaryMagic {
		v, err = ReadBinary(br)
	} else {
		v, err = ReadJSON(br)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "loading vocabulary from %q", path)
	}
	klog.V(1).Infof("Loaded vocabulary %s (%d tokens) from %s", v.Fingerprint(), v.Size(), path)
	return v, nil
}

// withFileLock opens (or creates) lockPath, locks it, and runs fn. A held
// lock is polled with a short randomized period until acquired. The lock file
// is not removed here; fn may remove it once no further savers are expected.
func withFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)

	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(50+rand.Intn(100)))
	}

	// Unlock in a deferred function so it runs even if fn panics.
	defer func() {
		if unlockErr := fileLock.Unlock(); unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Warningf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()

	fn()
	return
}
