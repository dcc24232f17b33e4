package script

import (
	"testing"
	"time"

	"github.com/dokzlo13/hidlight/internal/device"
)

func TestEval(t *testing.T) {
	e := New(0)
	defer e.Close()

	probes := []device.Probe{device.Reading(45), {}, device.Reading(71.5)}
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"expression/true", "probe(2) > 70", true},
		{"expression/false", "probe(0) > 70", false},
		{"absent_probe_is_nil", "probe(1) == nil", true},
		{"out_of_range_is_nil", "probe(9) == nil", true},
		{"probes_table", "probes[1] == 45 and probes[3] == 71.5", true},
		{"chunk", "local hottest = math.max(probes[1], probes[3])\nreturn hottest > 50", true},
		{"nil_result", "return nil", false},
		{"compile_error", "probe(0) >", false},
		{"runtime_error", "probe(1) > 10", false},
		{"sandboxed", "require ~= nil", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Eval(tt.source, probes); got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestEvalSeesLatestSnapshot(t *testing.T) {
	e := New(0)
	defer e.Close()

	const src = "probe(0) > 60"
	if e.Eval(src, []device.Probe{device.Reading(50)}) {
		t.Error("fired at 50")
	}
	if !e.Eval(src, []device.Probe{device.Reading(65)}) {
		t.Error("did not fire at 65")
	}
}

func TestEvalTimeout(t *testing.T) {
	e := New(10 * time.Millisecond)
	defer e.Close()

	if e.Eval("while true do end", nil) {
		t.Error("endless script fired")
	}
	if !e.Eval("1 < 2", nil) {
		t.Error("engine unusable after timeout")
	}
}
