// Package corsair drives Corsair Commander PRO and Lighting Node CORE
// controllers over their 64/16-byte HID report protocol.
package corsair

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/hid"
)

const (
	reportLength   = 64
	responseLength = 16
)

// Command codes. Byte 1 of every output report.
const (
	cmdGetFirmware        byte = 0x02
	cmdGetBootloader      byte = 0x06
	cmdGetTempConfig      byte = 0x10
	cmdGetTemp            byte = 0x11
	cmdGetFanModes        byte = 0x20
	cmdGetFanRPM          byte = 0x21
	cmdSetFanDuty         byte = 0x23
	cmdSetFanProfile      byte = 0x25
	cmdLEDDirect          byte = 0x32
	cmdLEDCommit          byte = 0x33
	cmdLEDBeginEffect     byte = 0x34
	cmdLEDEffect          byte = 0x35
	cmdLEDResetChannel    byte = 0x37
	cmdLEDSetChannelState byte = 0x38
)

const (
	ledPortStateHardware byte = 0x01
	ledPortStateSoftware byte = 0x02

	ledSpeedMedium       byte = 0x01
	ledDirectionForward  byte = 0x01
	ledEffectRainbowWave byte = 0x06
	ledMaxPerChannel     byte = device.MaxStripLEDs

	fanModeDisconnected byte = 0x00
	fanModeDC           byte = 0x01
	fanModePWM          byte = 0x02
)

// ledChunk is the number of LEDs sent per direct color write.
const ledChunk = 50

// ErrShortResponse is returned when the device answers a request with an
// empty report.
var ErrShortResponse = errors.New("short response from device")

// link frames commands onto a transport.
type link struct {
	t hid.Transport
}

func (l link) send(command byte, payload []byte) error {
	if len(payload) > reportLength-2 {
		return fmt.Errorf("command 0x%02x: payload of %d bytes exceeds report", command, len(payload))
	}
	var buf [reportLength]byte
	buf[1] = command
	copy(buf[2:], payload)
	if _, err := l.t.Write(buf[:]); err != nil {
		return fmt.Errorf("command 0x%02x: %w", command, err)
	}
	return nil
}

func (l link) request(command byte, payload ...byte) ([responseLength]byte, error) {
	var res [responseLength]byte
	if err := l.send(command, payload); err != nil {
		return res, err
	}
	n, err := l.t.Read(res[:])
	if err != nil {
		return res, fmt.Errorf("command 0x%02x: %w", command, err)
	}
	if n == 0 {
		return res, fmt.Errorf("command 0x%02x: %w", command, ErrShortResponse)
	}
	return res, nil
}

// drain discards unsolicited input reports so the next request pairs with
// its own response.
func (l link) drain() error {
	if err := l.t.SetNonblocking(true); err != nil {
		return fmt.Errorf("set non-blocking: %w", err)
	}
	var scratch [responseLength]byte
	for {
		n, err := l.t.Read(scratch[:])
		if err != nil {
			_ = l.t.SetNonblocking(false)
			return fmt.Errorf("drain: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if err := l.t.SetNonblocking(false); err != nil {
		return fmt.Errorf("set blocking: %w", err)
	}
	return nil
}

// Temperatures and speeds are big-endian 16-bit values starting at byte 1;
// temperatures are in hundredths of a degree.
func decodeTemp(res [responseLength]byte) float64 {
	return float64(uint16(res[1])<<8|uint16(res[2])) / 100
}

func decodeRPM(res [responseLength]byte) uint16 {
	return uint16(res[1])<<8 | uint16(res[2])
}

func putU16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}
