package profile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hidlight/internal/device"
	"github.com/dokzlo13/hidlight/internal/tagged"
)

// ProcessChecker reports whether a named process is running.
type ProcessChecker interface {
	Running(name string) bool
}

// NoProcesses is the process checker used by the daemon: it never finds a
// process.
type NoProcesses struct{}

func (NoProcesses) Running(string) bool { return false }

// ScriptEvaluator evaluates a scripted trigger against a probe snapshot.
type ScriptEvaluator interface {
	Eval(source string, probes []device.Probe) bool
}

// Env is what triggers are evaluated against. Probes is the snapshot
// flattened across all devices in device order.
type Env struct {
	Probes    []device.Probe
	Processes ProcessChecker
	Scripts   ScriptEvaluator
}

// Trigger is a profile activation condition.
type Trigger interface {
	Fires(env Env) bool
}

// SensorAbove fires while the probe reads strictly above Temperature.
type SensorAbove struct {
	Sensor      int     `yaml:"sensor"`
	Temperature float64 `yaml:"temperature"`
}

// SensorBelow fires while the probe reads strictly below Temperature.
type SensorBelow struct {
	Sensor      int     `yaml:"sensor"`
	Temperature float64 `yaml:"temperature"`
}

// ProcessRunning fires while a process with Name is running.
type ProcessRunning struct {
	Name string `yaml:"name"`
}

// Script fires when the Lua chunk evaluates to true.
type Script struct {
	Source string
}

func (t SensorAbove) Fires(env Env) bool {
	temp, ok := device.ProbeAt(env.Probes, t.Sensor)
	return ok && temp > t.Temperature
}

func (t SensorBelow) Fires(env Env) bool {
	temp, ok := device.ProbeAt(env.Probes, t.Sensor)
	return ok && temp < t.Temperature
}

func (t ProcessRunning) Fires(env Env) bool {
	return env.Processes != nil && env.Processes.Running(t.Name)
}

func (t Script) Fires(env Env) bool {
	return env.Scripts != nil && env.Scripts.Eval(t.Source, env.Probes)
}

// AnyFires reports whether at least one trigger fires.
func AnyFires(triggers []Trigger, env Env) bool {
	for _, t := range triggers {
		if t.Fires(env) {
			return true
		}
	}
	return false
}

// Triggers is a YAML-decodable trigger list.
type Triggers []Trigger

func (ts *Triggers) UnmarshalYAML(node *yaml.Node) error {
	node = tagged.Resolve(node)
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: triggers must be a list", node.Line)
	}
	out := make(Triggers, 0, len(node.Content))
	for _, item := range node.Content {
		t, err := DecodeTrigger(item)
		if err != nil {
			return err
		}
		out = append(out, t)
	}
	*ts = out
	return nil
}

// DecodeTrigger decodes `{sensor_above: {sensor, temperature}}`,
// `{sensor_below: ...}`, `{process_running: {name}}` or `{script: "..."}`.
func DecodeTrigger(node *yaml.Node) (Trigger, error) {
	tag, body, err := tagged.Split(node)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("line %d: trigger %q needs a value", node.Line, tag)
	}

	switch tag {
	case "sensor_above":
		var t SensorAbove
		if err := decodeSensor(body, &t.Sensor, &t.Temperature); err != nil {
			return nil, err
		}
		return t, nil
	case "sensor_below":
		var t SensorBelow
		if err := decodeSensor(body, &t.Sensor, &t.Temperature); err != nil {
			return nil, err
		}
		return t, nil
	case "process_running":
		var t ProcessRunning
		if err := body.Decode(&t); err != nil {
			return nil, fmt.Errorf("line %d: process_running: %w", body.Line, err)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("line %d: process_running needs a name", body.Line)
		}
		return t, nil
	case "script":
		var src string
		if err := body.Decode(&src); err != nil {
			return nil, fmt.Errorf("line %d: script: %w", body.Line, err)
		}
		return Script{Source: src}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown trigger %q", node.Line, tag)
	}
}

func decodeSensor(body *yaml.Node, sensor *int, temp *float64) error {
	var raw struct {
		Sensor      *int     `yaml:"sensor"`
		Temperature *float64 `yaml:"temperature"`
	}
	if err := body.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: %w", body.Line, err)
	}
	if raw.Sensor == nil || raw.Temperature == nil {
		return fmt.Errorf("line %d: sensor trigger needs sensor and temperature", body.Line)
	}
	*sensor, *temp = *raw.Sensor, *raw.Temperature
	return nil
}
