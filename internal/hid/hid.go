// Package hid provides the byte-oriented request/response channel devices
// are driven through, plus discovery of raw HID nodes by vendor/product.
package hid

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned where raw HID access is not available.
	ErrUnsupported = errors.New("raw hid is not supported on this platform")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("hid transport closed")
)

// Transport is an opened HID channel.
//
// Write sends one output report; the first byte is the report id.
// Read receives one input report. In non-blocking mode Read returns 0 and a
// nil error when no report is pending.
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetNonblocking(nonblocking bool) error
	Close() error
}

// Info describes a discovered HID node.
type Info struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Name      string
}

func (i Info) String() string {
	return fmt.Sprintf("%s [%04x:%04x] %s", i.Path, i.VendorID, i.ProductID, i.Name)
}
