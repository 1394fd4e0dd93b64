package pwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const fakeBase = "/sys/class/pwm"

// fakeKernel emulates the PWM sysfs tree on top of an in-memory filesystem.
// Writes to export/unexport create and remove pwmN nodes, attribute writes
// replace the file contents, and the duty_cycle <= period rule is enforced
// with EINVAL the way the kernel does.
type fakeKernel struct {
	afero.Fs

	mu      sync.Mutex
	writes  []string
	touched []string

	failExport   error
	failUnexport error
	// skipNode makes export succeed without creating the channel node. The
	// channel still counts as claimed until it is unexported.
	skipNode bool
	pending  map[string]bool
}

func newFakeKernel(t *testing.T) *fakeKernel {
	t.Helper()
	k := &fakeKernel{Fs: afero.NewMemMapFs()}
	require.NoError(t, k.MkdirAll(fakeBase, 0o755))
	return k
}

func (k *fakeKernel) opts(extra ...Option) []Option {
	return append([]Option{WithFs(k), WithBase(fakeBase)}, extra...)
}

func (k *fakeKernel) addChip(t *testing.T, index, npwm uint32) {
	t.Helper()
	dir := filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d", index))
	require.NoError(t, k.MkdirAll(dir, 0o755))
	require.NoError(t, afero.WriteFile(k.Fs, filepath.Join(dir, "npwm"), []byte(fmt.Sprintf("%d\n", npwm)), 0o444))
	require.NoError(t, afero.WriteFile(k.Fs, filepath.Join(dir, "export"), nil, 0o200))
	require.NoError(t, afero.WriteFile(k.Fs, filepath.Join(dir, "unexport"), nil, 0o200))
}

func (k *fakeKernel) setChipFile(t *testing.T, chip uint32, name, value string) {
	t.Helper()
	p := filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d/%s", chip, name))
	require.NoError(t, afero.WriteFile(k.Fs, p, []byte(value), 0o644))
}

// setAttr overwrites an attribute behind the driver's back.
func (k *fakeKernel) setAttr(t *testing.T, chip, channel uint32, name, value string) {
	t.Helper()
	p := filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d/pwm%d/%s", chip, channel, name))
	require.NoError(t, afero.WriteFile(k.Fs, p, []byte(value), 0o644))
}

func (k *fakeKernel) attr(t *testing.T, chip, channel uint32, name string) string {
	t.Helper()
	p := filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d/pwm%d/%s", chip, channel, name))
	b, err := afero.ReadFile(k.Fs, p)
	require.NoError(t, err)
	return string(b)
}

func (k *fakeKernel) exported(chip, channel uint32) bool {
	_, err := k.Fs.Stat(filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d/pwm%d", chip, channel)))
	return err == nil
}

// claimed reports whether the kernel holds the channel, node or not.
func (k *fakeKernel) claimed(chip, channel uint32) bool {
	node := filepath.Join(fakeBase, fmt.Sprintf("pwmchip%d/pwm%d", chip, channel))
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pending[node] || k.exported(chip, channel)
}

func (k *fakeKernel) writeLog() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.writes...)
}

func (k *fakeKernel) touchedFiles() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.touched...)
}

func (k *fakeKernel) Open(name string) (afero.File, error) {
	k.mu.Lock()
	k.touched = append(k.touched, name)
	k.mu.Unlock()
	return k.Fs.Open(name)
}

func (k *fakeKernel) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	k.mu.Lock()
	k.touched = append(k.touched, name)
	k.mu.Unlock()
	f, err := k.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return f, nil
	}
	return &attrFile{File: f, k: k, name: name}, nil
}

type attrFile struct {
	afero.File
	k    *fakeKernel
	name string
}

func (f *attrFile) Write(p []byte) (int, error) {
	if err := f.k.store(f.name, string(p)); err != nil {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: err}
	}
	return len(p), nil
}

func (k *fakeKernel) store(path, value string) error {
	k.mu.Lock()
	k.writes = append(k.writes, path+"="+value)
	k.mu.Unlock()

	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	switch name {
	case "export":
		if k.failExport != nil {
			return k.failExport
		}
		n, err := k.channelArg(dir, value)
		if err != nil {
			return err
		}
		node := filepath.Join(dir, fmt.Sprintf("pwm%d", n))
		if _, err := k.Fs.Stat(node); err == nil {
			return syscall.EBUSY
		}
		if k.skipNode {
			k.mu.Lock()
			if k.pending == nil {
				k.pending = make(map[string]bool)
			}
			k.pending[node] = true
			k.mu.Unlock()
			return nil
		}
		return k.createNode(node)
	case "unexport":
		if k.failUnexport != nil {
			return k.failUnexport
		}
		n, err := k.channelArg(dir, value)
		if err != nil {
			return err
		}
		node := filepath.Join(dir, fmt.Sprintf("pwm%d", n))
		k.mu.Lock()
		wasPending := k.pending[node]
		delete(k.pending, node)
		k.mu.Unlock()
		if _, err := k.Fs.Stat(node); err != nil {
			if wasPending {
				return nil
			}
			return syscall.EINVAL
		}
		return k.Fs.RemoveAll(node)
	case "enable":
		if value != "0" && value != "1" {
			return syscall.EINVAL
		}
	case "period":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return syscall.EINVAL
		}
		if duty, _ := k.readUint(filepath.Join(dir, "duty_cycle")); v < duty {
			return syscall.EINVAL
		}
	case "duty_cycle":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return syscall.EINVAL
		}
		if period, _ := k.readUint(filepath.Join(dir, "period")); v > period {
			return syscall.EINVAL
		}
	case "polarity":
		if value != "normal" && value != "inversed" {
			return syscall.EINVAL
		}
	default:
		return syscall.EACCES
	}
	return afero.WriteFile(k.Fs, path, []byte(value+"\n"), 0o644)
}

func (k *fakeKernel) channelArg(chipDir, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, syscall.EINVAL
	}
	npwm, err := k.readUint(filepath.Join(chipDir, "npwm"))
	if err != nil || n >= npwm {
		return 0, syscall.ENODEV
	}
	return n, nil
}

func (k *fakeKernel) readUint(path string) (uint64, error) {
	b, err := afero.ReadFile(k.Fs, path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

func (k *fakeKernel) createNode(node string) error {
	if err := k.Fs.MkdirAll(node, 0o755); err != nil {
		return err
	}
	attrs := map[string]string{
		"enable":     "0\n",
		"period":     "0\n",
		"duty_cycle": "0\n",
		"polarity":   "normal\n",
	}
	for name, v := range attrs {
		if err := afero.WriteFile(k.Fs, filepath.Join(node, name), []byte(v), 0o644); err != nil {
			return err
		}
	}
	return nil
}
