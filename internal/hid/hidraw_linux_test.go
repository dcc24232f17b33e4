//go:build linux

package hid

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseUevent(t *testing.T) {
	src := `DRIVER=hid-generic
HID_ID=0003:00001B1C:00000C10
HID_NAME=Corsair Commander PRO
HID_PHYS=usb-0000:00:14.0-9/input0
`
	info, err := parseUevent(bufio.NewScanner(strings.NewReader(src)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.VendorID != 0x1b1c || info.ProductID != 0x0c10 {
		t.Errorf("ids = %04x:%04x", info.VendorID, info.ProductID)
	}
	if info.Name != "Corsair Commander PRO" {
		t.Errorf("name = %q", info.Name)
	}
}

func TestParseUeventErrors(t *testing.T) {
	for _, src := range []string{
		"HID_NAME=nothing\n",
		"HID_ID=0003:zz:0c10\n",
		"HID_ID=0003:1b1c\n",
	} {
		if _, err := parseUevent(bufio.NewScanner(strings.NewReader(src))); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}
