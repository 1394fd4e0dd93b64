package pwm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultBase is where the kernel exposes PWM controllers.
const DefaultBase = "/sys/class/pwm"

// DefaultExportWait bounds how long Export waits for the channel node to
// appear after writing to the export file.
const DefaultExportWait = 500 * time.Millisecond

var exportPollInterval = 10 * time.Millisecond

// sysfs is the root every Chip and Channel reads and writes through.
// It is immutable once built.
type sysfs struct {
	fs         afero.Fs
	base       string
	log        *slog.Logger
	exportWait time.Duration
}

// Option configures how chips and channels reach the PWM sysfs tree.
type Option func(*sysfs)

// WithBase overrides DefaultBase.
func WithBase(base string) Option {
	return func(s *sysfs) { s.base = filepath.Clean(base) }
}

// WithFs routes all file access through fs instead of the host filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *sysfs) { s.fs = fs }
}

// WithLogger enables debug logging of the export lifecycle.
func WithLogger(l *slog.Logger) Option {
	return func(s *sysfs) {
		if l != nil {
			s.log = l
		}
	}
}

// WithExportWait sets how long Export polls for the channel node.
// Zero disables the wait.
func WithExportWait(d time.Duration) Option {
	return func(s *sysfs) {
		if d >= 0 {
			s.exportWait = d
		}
	}
}

func newSysfs(opts []Option) *sysfs {
	s := &sysfs{
		fs:         afero.NewOsFs(),
		base:       DefaultBase,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		exportWait: DefaultExportWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sysfs) chipPath(chip uint32) string {
	return filepath.Join(s.base, fmt.Sprintf("pwmchip%d", chip))
}

func (s *sysfs) channelPath(chip, channel uint32) string {
	return filepath.Join(s.chipPath(chip), fmt.Sprintf("pwm%d", channel))
}

func (s *sysfs) channelAttr(chip, channel uint32, name string) string {
	return filepath.Join(s.channelPath(chip, channel), name)
}

// exists treats any stat failure as absence.
func (s *sysfs) exists(path string) bool {
	_, err := s.fs.Stat(path)
	return err == nil
}

func (s *sysfs) readAttr(path string) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return string(b), nil
}

func (s *sysfs) readUint(path string, bitSize int) (uint64, error) {
	raw, err := s.readAttr(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, bitSize)
	if err != nil {
		return 0, &UnexpectedError{Path: path, Raw: raw, Err: err}
	}
	return n, nil
}

// writeAttr stores value with a single write. Sysfs attributes are opened
// O_WRONLY without O_CREATE/O_TRUNC; some reject the extra flags at open().
func (s *sysfs) writeAttr(path, value string, sync bool) error {
	f, err := s.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	if _, err := f.Write([]byte(value)); err != nil {
		_ = f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if sync {
		// Best effort: kernfs implements fsync as a no-op.
		_ = f.Sync()
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func (s *sysfs) writeUint(path string, v uint64, sync bool) error {
	return s.writeAttr(path, strconv.FormatUint(v, 10), sync)
}

// waitFor polls until path exists or the export wait elapses.
func (s *sysfs) waitFor(path string) bool {
	if s.exists(path) {
		return true
	}
	deadline := time.Now().Add(s.exportWait)
	for time.Now().Before(deadline) {
		time.Sleep(exportPollInterval)
		if s.exists(path) {
			return true
		}
	}
	return false
}
