package corsair

import (
	"errors"
	"testing"

	"github.com/dokzlo13/hidlight/internal/color"
	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/hid"
)

// fakeTransport answers every output report with the response produced by
// respond, queued like a real hidraw node would queue it.
type fakeTransport struct {
	writes      [][]byte
	pending     [][]byte
	nonblocking bool
	respond     func(cmd byte, payload []byte) []byte
	failWrite   error
	failOn      byte
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.failWrite != nil && (f.failOn == 0 || p[1] == f.failOn) {
		return 0, f.failWrite
	}
	buf := append([]byte(nil), p...)
	f.writes = append(f.writes, buf)
	res := make([]byte, responseLength)
	if f.respond != nil {
		copy(res, f.respond(buf[1], buf[2:]))
	}
	f.pending = append(f.pending, res)
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, nil
	}
	n := copy(p, f.pending[0])
	f.pending = f.pending[1:]
	return n, nil
}

func (f *fakeTransport) SetNonblocking(nonblocking bool) error {
	f.nonblocking = nonblocking
	return nil
}

func (f *fakeTransport) Close() error { return nil }

// commands returns the writes carrying cmd.
func (f *fakeTransport) commands(cmd byte) [][]byte {
	var out [][]byte
	for _, w := range f.writes {
		if w[1] == cmd {
			out = append(out, w)
		}
	}
	return out
}

func (f *fakeTransport) reset() { f.writes = nil }

// commanderPro answers like a Commander PRO with probes 0 and 2 connected,
// fan 0 on DC and fan 3 on PWM.
func commanderPro(temp uint16, rpm uint16) func(byte, []byte) []byte {
	return func(cmd byte, payload []byte) []byte {
		switch cmd {
		case cmdGetFirmware:
			return []byte{0, 0, 9, 212}
		case cmdGetBootloader:
			return []byte{0, 0, 3}
		case cmdGetTempConfig:
			return []byte{0, 1, 0, 1, 0}
		case cmdGetFanModes:
			return []byte{0, fanModeDC, 0, 0, fanModePWM, 0, 0}
		case cmdGetTemp:
			return []byte{0, byte(temp >> 8), byte(temp)}
		case cmdGetFanRPM:
			return []byte{0, byte(rpm >> 8), byte(rpm)}
		}
		return nil
	}
}

func initialized(t *testing.T, tr *fakeTransport) *Lighting {
	t.Helper()
	l := NewCommanderPro(tr)
	if err := l.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tr.reset()
	return l
}

func TestInitializeDetectsProbesAndFans(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1200)}
	l := initialized(t, tr)

	probes := l.Probes()
	want := []device.Probe{device.Reading(25.5), {}, device.Reading(25.5), {}}
	for i := range want {
		if probes[i] != want[i] {
			t.Errorf("probe %d = %+v, want %+v", i, probes[i], want[i])
		}
	}

	modes := l.FanModes()
	wantModes := []FanMode{FanDC, FanOff, FanOff, FanPWM, FanOff, FanOff}
	for i := range wantModes {
		if modes[i] != wantModes[i] {
			t.Errorf("fan %d mode = %v, want %v", i, modes[i], wantModes[i])
		}
	}
	if l.LEDOnly() {
		t.Error("commander pro must not be led-only")
	}
	if !NewLightingNodeCore(tr).LEDOnly() {
		t.Error("lighting node core must be led-only")
	}
}

func TestInitializeResetsChannelsToHardwareEffect(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1200)}
	l := NewCommanderPro(tr)
	if err := l.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var seq []byte
	for _, w := range tr.writes {
		if w[1] >= cmdLEDDirect {
			seq = append(seq, w[1], w[2])
		}
	}
	want := []byte{
		cmdLEDResetChannel, 0, cmdLEDBeginEffect, 0, cmdLEDSetChannelState, 0, cmdLEDEffect, 0, cmdLEDCommit, 0,
		cmdLEDResetChannel, 1, cmdLEDBeginEffect, 1, cmdLEDSetChannelState, 1, cmdLEDEffect, 1, cmdLEDCommit, 1,
	}
	if string(seq) != string(want) {
		t.Fatalf("reset sequence = %v, want %v", seq, want)
	}

	state := tr.commands(cmdLEDSetChannelState)[0]
	if state[3] != ledPortStateHardware {
		t.Errorf("channel state = %d, want hardware", state[3])
	}
	eff := tr.commands(cmdLEDEffect)[0]
	if eff[4] != ledMaxPerChannel || eff[5] != ledEffectRainbowWave {
		t.Errorf("effect params = %v", eff[2:10])
	}
}

func TestUpdateRoundRobinSampling(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(3000, 900)}
	l := initialized(t, tr)

	// Eligible metrics: probe 0, probe 2, fan 0, fan 3.
	for _, ticks := range []int{4, 7, 10, 13} {
		tr.reset()
		for i := 0; i < ticks; i++ {
			if err := l.Update(); err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		counts := map[[2]byte]int{}
		for _, w := range tr.writes {
			if w[1] == cmdGetTemp || w[1] == cmdGetFanRPM {
				counts[[2]byte{w[1], w[2]}]++
			}
		}
		metrics := [][2]byte{{cmdGetTemp, 0}, {cmdGetTemp, 2}, {cmdGetFanRPM, 0}, {cmdGetFanRPM, 3}}
		if len(counts) > len(metrics) {
			t.Fatalf("%d ticks: sampled ineligible metrics: %v", ticks, counts)
		}
		lo, hi := ticks/len(metrics), (ticks+len(metrics)-1)/len(metrics)
		total := 0
		for _, m := range metrics {
			c := counts[m]
			total += c
			if c < lo || c > hi {
				t.Errorf("%d ticks: metric %v sampled %d times, want [%d,%d]", ticks, m, c, lo, hi)
			}
		}
		if total != ticks {
			t.Errorf("%d ticks: %d telemetry requests, want one per tick", ticks, total)
		}
	}

	if got := l.RPMs(); got[0] != 900 || got[3] != 900 || got[1] != 0 {
		t.Errorf("rpms = %v", got)
	}
}

func TestUpdateSubstitutesFaultyTemperature(t *testing.T) {
	temp := uint16(2550)
	tr := &fakeTransport{}
	tr.respond = func(cmd byte, payload []byte) []byte {
		return commanderPro(temp, 1000)(cmd, payload)
	}
	l := initialized(t, tr)

	temp = 0
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := l.Probes()[0]; got != device.Reading(100) {
		t.Errorf("faulty probe = %+v, want 100", got)
	}
}

func TestUpdateDrainsStaleReports(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)

	stale := make([]byte, responseLength)
	stale[1], stale[2] = 0xff, 0xff
	tr.pending = append(tr.pending, stale, stale)

	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := l.Probes()[0]; got != device.Reading(25.5) {
		t.Errorf("probe 0 = %+v, stale report leaked into sample", got)
	}
	if tr.nonblocking {
		t.Error("transport left in non-blocking mode")
	}
}

func TestUpdatePushesOnlyWhenDirty(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)

	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(tr.commands(cmdSetFanDuty)); n != 6 {
		t.Errorf("first update sent %d duty commands, want 6", n)
	}

	tr.reset()
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(tr.commands(cmdSetFanDuty)) + len(tr.commands(cmdLEDCommit)); n != 0 {
		t.Errorf("clean update pushed %d commands", n)
	}

	l.Fans()
	tr.reset()
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(tr.commands(cmdSetFanDuty)); n != 6 {
		t.Errorf("dirty update sent %d duty commands, want 6", n)
	}
}

func TestFanEncoding(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)

	curve := device.Curve{Sensor: 2}
	for i := range curve.Points {
		curve.Points[i] = device.CurvePoint{Temp: 20 + float64(i)*5, RPM: uint16(600 + i*200)}
	}
	fans := l.Fans()
	fans[0] = device.PWM{Duty: 0.5}
	fans[1] = device.PWM{Duty: 1.7}
	fans[2] = device.PWM{Duty: -0.2}
	fans[3] = device.RPM{Target: 1500}
	fans[4] = curve
	fans[5] = device.PWM{Duty: 0}

	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}

	duty := tr.commands(cmdSetFanDuty)
	want := map[byte]byte{0: 50, 1: 100, 2: 0, 5: 0}
	if len(duty) != len(want) {
		t.Fatalf("got %d duty commands, want %d", len(duty), len(want))
	}
	for _, w := range duty {
		if w[3] != want[w[2]] {
			t.Errorf("fan %d duty = %d, want %d", w[2], w[3], want[w[2]])
		}
	}

	profiles := tr.commands(cmdSetFanProfile)
	if len(profiles) != 2 {
		t.Fatalf("got %d profile commands, want 2", len(profiles))
	}

	rpm := profiles[0][2:]
	if rpm[0] != 3 || rpm[1] != 0 {
		t.Errorf("rpm header = %v, want channel 3 sensor 0", rpm[:2])
	}
	for j := 0; j < device.CurvePoints; j++ {
		if rpm[2+j*2] != 0 || rpm[3+j*2] != 0 {
			t.Errorf("rpm temp %d not zero", j)
		}
		if got := uint16(rpm[14+j*2])<<8 | uint16(rpm[15+j*2]); got != 1500 {
			t.Errorf("rpm point %d = %d, want 1500", j, got)
		}
	}

	c := profiles[1][2:]
	if c[0] != 4 || c[1] != 2 {
		t.Errorf("curve header = %v, want channel 4 sensor 2", c[:2])
	}
	for j, p := range curve.Points {
		temp := uint16(c[2+j*2])<<8 | uint16(c[3+j*2])
		rpm := uint16(c[14+j*2])<<8 | uint16(c[15+j*2])
		if temp != uint16(p.Temp*100) || rpm != p.RPM {
			t.Errorf("curve point %d = (%d, %d), want (%d, %d)", j, temp, rpm, uint16(p.Temp*100), p.RPM)
		}
	}
}

func TestLEDChunking(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}

	strips := l.Strips()
	strips[1].Grow(120)
	for i := range strips[1].Colors {
		strips[1].Colors[i] = color.RGB(1, 0.5, 0)
	}
	tr.reset()
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Channel 0 is empty and skipped; channel 1 gets 3 chunks x 3 components.
	direct := tr.commands(cmdLEDDirect)
	if len(direct) != 9 {
		t.Fatalf("got %d direct writes, want 9", len(direct))
	}
	wantStart := []byte{0, 0, 0, 50, 50, 50, 100, 100, 100}
	wantLen := []byte{50, 50, 50, 50, 50, 50, 20, 20, 20}
	wantValue := []byte{255, 127, 0}
	for i, w := range direct {
		p := w[2:]
		if p[0] != 1 || p[1] != wantStart[i] || p[2] != wantLen[i] || p[3] != byte(i%3) {
			t.Errorf("write %d header = %v", i, p[:4])
		}
		if p[4] != wantValue[i%3] {
			t.Errorf("write %d value = %d, want %d", i, p[4], wantValue[i%3])
		}
	}

	commits := tr.commands(cmdLEDCommit)
	if len(commits) != 1 || commits[0][2] != 1 {
		t.Errorf("commits = %v, want one for channel 1", commits)
	}
	if last := tr.writes[len(tr.writes)-1]; last[1] != cmdLEDCommit {
		t.Errorf("last write = 0x%02x, want commit", last[1])
	}
	states := tr.commands(cmdLEDSetChannelState)
	if len(states) != 1 || states[0][3] != ledPortStateSoftware {
		t.Errorf("channel state writes = %v", states)
	}
}

func TestLEDUploadStopsAtChannelLimit(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}

	l.Strips()[0].Grow(320)
	tr.reset()
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}

	direct := tr.commands(cmdLEDDirect)
	wantStart := []int{0, 50, 100, 150, 200}
	wantLen := []int{50, 50, 50, 50, 4}
	if len(direct) != len(wantStart)*3 {
		t.Fatalf("got %d direct writes, want %d", len(direct), len(wantStart)*3)
	}
	for i, w := range direct {
		p := w[2:]
		if int(p[1]) != wantStart[i/3] || int(p[2]) != wantLen[i/3] {
			t.Errorf("write %d header start=%d len=%d, want start=%d len=%d", i, p[1], p[2], wantStart[i/3], wantLen[i/3])
		}
	}
}

func TestFailedPushKeepsDirty(t *testing.T) {
	tr := &fakeTransport{respond: commanderPro(2550, 1000)}
	l := initialized(t, tr)

	boom := errors.New("pipe broken")
	tr.failWrite, tr.failOn = boom, cmdSetFanDuty
	if err := l.Update(); !errors.Is(err, boom) {
		t.Fatalf("update error = %v, want %v", err, boom)
	}

	tr.failWrite = nil
	tr.reset()
	if err := l.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(tr.commands(cmdSetFanDuty)); n != 6 {
		t.Errorf("retry sent %d duty commands, want 6", n)
	}
}

func TestRequestShortResponse(t *testing.T) {
	tr := &emptyTransport{}
	_, err := link{t: tr}.request(cmdGetFirmware)
	if !errors.Is(err, ErrShortResponse) {
		t.Fatalf("err = %v, want ErrShortResponse", err)
	}
}

type emptyTransport struct{ fakeTransport }

func (e *emptyTransport) Read([]byte) (int, error) { return 0, nil }

func TestDiscover(t *testing.T) {
	infos := []hid.Info{
		{Path: "/dev/hidraw0", VendorID: 0x046d, ProductID: 0xc52b},
		{Path: "/dev/hidraw1", VendorID: VendorID, ProductID: 0x0c10},
		{Path: "/dev/hidraw2", VendorID: VendorID, ProductID: 0x0c1a},
		{Path: "/dev/hidraw3", VendorID: VendorID, ProductID: 0x0c10},
	}
	open := func(info hid.Info) (hid.Transport, error) {
		if info.Path == "/dev/hidraw3" {
			return nil, errors.New("permission denied")
		}
		return &fakeTransport{}, nil
	}

	attached, err := Discover(infos, open)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(attached) != 2 {
		t.Fatalf("attached %d devices, want 2", len(attached))
	}
	if attached[0].Device.Name() != "Commander PRO" || attached[1].Device.Name() != "Lighting Node CORE" {
		t.Errorf("names = %q, %q", attached[0].Device.Name(), attached[1].Device.Name())
	}

	if _, err := Discover(infos[:1], open); !errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}
