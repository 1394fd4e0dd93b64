package pwm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Chip is a PWM controller exposed as pwmchipN under the sysfs base.
//
// A Chip holds no kernel resource. Exporting is done per channel.
// Obtain chips from NewChip or Chips; the zero value is not usable.
type Chip struct {
	index uint32
	sys   *sysfs
}

// NewChip verifies that the kernel exposes controller index and returns a
// handle for it. A missing controller yields an error for which IsNotFound
// reports true.
func NewChip(index uint32, opts ...Option) (Chip, error) {
	return newChip(newSysfs(opts), index)
}

func newChip(sys *sysfs, index uint32) (Chip, error) {
	path := sys.chipPath(index)
	if _, err := sys.fs.Stat(path); err != nil {
		return Chip{}, &IOError{Op: "stat", Path: path, Err: err}
	}
	return Chip{index: index, sys: sys}, nil
}

// Chips lists the controllers present under the sysfs base, ordered by index.
func Chips(opts ...Option) ([]Chip, error) {
	sys := newSysfs(opts)
	entries, err := afero.ReadDir(sys.fs, sys.base)
	if err != nil {
		return nil, &IOError{Op: "readdir", Path: sys.base, Err: err}
	}
	// In sysfs, pwmchipN entries are symlinks, not directories.
	var chips []Chip
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(e.Name(), "pwmchip")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(suffix, 10, 32)
		if err != nil {
			continue
		}
		chips = append(chips, Chip{index: uint32(n), sys: sys})
	}
	sort.Slice(chips, func(i, j int) bool { return chips[i].index < chips[j].index })
	return chips, nil
}

func (c Chip) Index() uint32 { return c.index }

func (c Chip) String() string { return fmt.Sprintf("pwmchip%d", c.index) }

// Count returns the number of channels the controller provides (npwm).
func (c Chip) Count() (uint32, error) {
	n, err := c.sys.readUint(filepath.Join(c.sys.chipPath(c.index), "npwm"), 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// Exported reports whether the channel's pwmN node exists.
func (c Chip) Exported(channel uint32) bool {
	return c.sys.exists(c.sys.channelPath(c.index, channel))
}

// Channel returns a handle for one of the chip's channels without exporting it.
func (c Chip) Channel(channel uint32) Channel {
	return Channel{chip: c, index: channel}
}

// Export asks the kernel to create the channel's control files. Exporting a
// channel that is already exported is a no-op.
func (c Chip) Export(channel uint32) error {
	node := c.sys.channelPath(c.index, channel)
	if c.sys.exists(node) {
		return nil
	}
	path := filepath.Join(c.sys.chipPath(c.index), "export")
	if err := c.sys.writeUint(path, uint64(channel), true); err != nil {
		// Exported by someone else in the meantime.
		if c.sys.exists(node) {
			return nil
		}
		return err
	}
	if c.sys.exportWait > 0 && !c.sys.waitFor(node) {
		// The kernel accepted the export; hand the channel back so a node
		// that shows up late is not left claimed.
		unexport := filepath.Join(c.sys.chipPath(c.index), "unexport")
		if uerr := c.sys.writeUint(unexport, uint64(channel), true); uerr != nil {
			c.sys.log.Debug("pwm release after export timeout failed", "chip", c.index, "channel", channel, "err", uerr)
		}
		return &IOError{Op: "export", Path: node, Err: fmt.Errorf("node not created after %s", c.sys.exportWait)}
	}
	c.sys.log.Debug("pwm channel exported", "chip", c.index, "channel", channel)
	return nil
}

// Unexport releases the channel's control files. Unexporting a channel that
// is not exported is a no-op.
func (c Chip) Unexport(channel uint32) error {
	if !c.sys.exists(c.sys.channelPath(c.index, channel)) {
		return nil
	}
	path := filepath.Join(c.sys.chipPath(c.index), "unexport")
	if err := c.sys.writeUint(path, uint64(channel), true); err != nil {
		return err
	}
	c.sys.log.Debug("pwm channel unexported", "chip", c.index, "channel", channel)
	return nil
}
