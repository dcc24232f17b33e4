//go:build linux

package hid

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Linux implementation backed by /dev/hidraw*. Writes and reads map 1:1 to
// HID reports; the kernel strips report id 0 on write.

const sysfsHidraw = "/sys/class/hidraw"

// Raw is an opened /dev/hidraw node.
type Raw struct {
	mu   sync.Mutex
	fd   int
	path string
}

// Open opens a hidraw node for reading and writing in blocking mode.
func Open(path string) (*Raw, error) {
	path = filepath.Clean(path)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Raw{fd: fd, path: path}, nil
}

func (r *Raw) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Write(r.fd, p)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", r.path, err)
	}
	return n, nil
}

func (r *Raw) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Read(r.fd, p)
	if errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r.path, err)
	}
	return n, nil
}

// SetNonblocking toggles O_NONBLOCK on the node.
func (r *Raw) SetNonblocking(nonblocking bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return ErrClosed
	}
	return unix.SetNonblock(r.fd, nonblocking)
}

func (r *Raw) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return nil
	}
	err := unix.Close(r.fd)
	r.fd = -1
	return err
}

// Enumerate lists hidraw nodes with their USB identity.
func Enumerate() ([]Info, error) {
	entries, err := os.ReadDir(sysfsHidraw)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		info, err := readUevent(filepath.Join(sysfsHidraw, e.Name(), "device", "uevent"))
		if err != nil {
			continue
		}
		info.Path = filepath.Join("/dev", e.Name())
		infos = append(infos, info)
	}
	return infos, nil
}

// readUevent parses HID_ID=bus:vendor:product and HID_NAME lines.
func readUevent(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return parseUevent(bufio.NewScanner(f))
}

func parseUevent(sc *bufio.Scanner) (Info, error) {
	var info Info
	found := false
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "HID_ID":
			parts := strings.Split(value, ":")
			if len(parts) != 3 {
				return Info{}, fmt.Errorf("malformed HID_ID %q", value)
			}
			vid, err := strconv.ParseUint(parts[1], 16, 32)
			if err != nil {
				return Info{}, fmt.Errorf("malformed vendor id %q: %w", parts[1], err)
			}
			pid, err := strconv.ParseUint(parts[2], 16, 32)
			if err != nil {
				return Info{}, fmt.Errorf("malformed product id %q: %w", parts[2], err)
			}
			info.VendorID = uint16(vid)
			info.ProductID = uint16(pid)
			found = true
		case "HID_NAME":
			info.Name = value
		}
	}
	if err := sc.Err(); err != nil {
		return Info{}, err
	}
	if !found {
		return Info{}, errors.New("no HID_ID in uevent")
	}
	return info, nil
}

// OpenTransport opens the node described by info.
func OpenTransport(info Info) (Transport, error) {
	raw, err := Open(info.Path)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
