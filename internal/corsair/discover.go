package corsair

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/hid"
)

// VendorID is Corsair's USB vendor id.
const VendorID uint16 = 0x1b1c

// Product describes a supported controller model.
type Product struct {
	ID    uint16
	Model string
	New   func(hid.Transport) *Lighting
}

// Products lists every supported controller.
var Products = []Product{
	{ID: 0x0c10, Model: "Commander PRO", New: NewCommanderPro},
	{ID: 0x0c1a, Model: "Lighting Node CORE", New: NewLightingNodeCore},
}

// ErrNoDevices is returned by Discover when nothing supported is attached.
var ErrNoDevices = errors.New("no supported devices found")

// Lookup returns the product matching a HID identity.
func Lookup(info hid.Info) (Product, bool) {
	if info.VendorID != VendorID {
		return Product{}, false
	}
	for _, p := range Products {
		if p.ID == info.ProductID {
			return p, true
		}
	}
	return Product{}, false
}

// Supported filters infos down to known controllers.
func Supported(infos []hid.Info) []hid.Info {
	var out []hid.Info
	for _, info := range infos {
		if _, ok := Lookup(info); ok {
			out = append(out, info)
		}
	}
	return out
}

// Opener opens a transport for a discovered node.
type Opener func(hid.Info) (hid.Transport, error)

// Attached is an opened controller together with its transport.
type Attached struct {
	Info      hid.Info
	Device    *Lighting
	Transport hid.Transport
}

// Discover opens every supported controller in infos, in order. Nodes that
// fail to open are logged and skipped; ErrNoDevices is returned when none
// could be opened.
func Discover(infos []hid.Info, open Opener) ([]Attached, error) {
	var attached []Attached
	for _, info := range Supported(infos) {
		p, _ := Lookup(info)
		t, err := open(info)
		if err != nil {
			log.Error().Err(err).Str("path", info.Path).Str("model", p.Model).Msg("Failed to open device")
			continue
		}
		attached = append(attached, Attached{Info: info, Device: p.New(t), Transport: t})
	}
	if len(attached) == 0 {
		return nil, ErrNoDevices
	}
	return attached, nil
}

// Devices returns the device handles of attached controllers.
func Devices(attached []Attached) []device.Device {
	out := make([]device.Device, len(attached))
	for i, a := range attached {
		out[i] = a.Device
	}
	return out
}

// Close closes every transport, returning the first error.
func Close(attached []Attached) error {
	var first error
	for _, a := range attached {
		if err := a.Transport.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", a.Info.Path, err)
		}
	}
	return first
}
