//go:build !linux

package hid

// Enumerate reports no devices outside Linux.
func Enumerate() ([]Info, error) {
	return nil, ErrUnsupported
}

// OpenTransport is unavailable outside Linux.
func OpenTransport(Info) (Transport, error) {
	return nil, ErrUnsupported
}
