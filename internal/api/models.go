package api

import "time"

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"Control loop running" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// ProbeData is one temperature probe. Temperature is omitted when the
// probe has no reading.
type ProbeData struct {
	Index       int      `json:"index" doc:"Probe index within the device"`
	Temperature *float64 `json:"temperature,omitempty" doc:"Celsius"`
}

type FanData struct {
	Index int    `json:"index"`
	RPM   uint16 `json:"rpm"`
}

type DeviceData struct {
	Name    string      `json:"name" example:"Commander PRO"`
	LEDOnly bool        `json:"led_only"`
	Failed  bool        `json:"failed" doc:"Last update of the device failed"`
	Probes  []ProbeData `json:"probes"`
	Fans    []FanData   `json:"fans"`
}

type StatusData struct {
	Frame        uint64       `json:"frame"`
	ColorProfile string       `json:"color_profile"`
	FanProfile   string       `json:"fan_profile"`
	Recoveries   uint64       `json:"stall_recoveries"`
	LastTick     time.Time    `json:"last_tick"`
	TickMillis   float64      `json:"tick_ms" doc:"Duration of the last tick"`
	TickAvgMs    float64      `json:"tick_avg_ms"`
	TickMaxMs    float64      `json:"tick_max_ms"`
	Devices      []DeviceData `json:"devices"`
}

type StatusResponse struct {
	Body StatusData
}

type EventsInput struct {
	Type  string `query:"type" enum:"color_profile,fan_profile,stall_recovered,device_failed,device_recovered" doc:"Filter by event type"`
	Since string `query:"since" example:"1h" doc:"Look-back window when no type is given"`
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"1000"`
}

type EventData struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Subject   string         `json:"subject,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type EventsResponse struct {
	Body struct {
		Events []EventData `json:"events"`
	}
}
