// internal/config/config.go
package config

type Config struct {
	Pipeline   PipelineConfig `yaml:"pipeline"`
	LensSerial *SerialConfig  `yaml:"lens_serial"`
	Timing     TimingConfig   `yaml:"timing"`
	Analyzer   AnalyzerConfig `yaml:"analyzer"`
	Status     *StatusConfig  `yaml:"status"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// ---- PIPELINE ----

type PipelineConfig struct {
	ISPSubdev    string `yaml:"isp_subdev"` // frame-sync events
	SensorSubdev string `yaml:"sensor_subdev"`
	StatsNode    string `yaml:"stats_node"`
	ParamsNode   string `yaml:"params_node"`

	LensSubdev     string `yaml:"lens_subdev"`     // optional VCM
	CombinedDevice string `yaml:"combined_device"` // optional batched exposure node

	StatsBuffers  int `yaml:"stats_buffers"`
	ParamsBuffers int `yaml:"params_buffers"`
}

// ---- LENS (SERIAL MOTOR) ----

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// ---- TIMING ----

// TimingConfig holds the pipeline latencies and wait bounds. The
// defaults match the sensors this loop was tuned on; changing them
// shifts which statistics frame is paired with which exposure.
type TimingConfig struct {
	ExposureDelayFrames int `yaml:"exposure_delay_frames"`
	GainDelayFrames     int `yaml:"gain_delay_frames"`
	ResyncWaitMs        int `yaml:"resync_wait_ms"`
	LateStatsBoundMs    int `yaml:"late_stats_bound_ms"`
	PollIntervalMs      int `yaml:"poll_interval_ms"`
	StaleAfterMs        int `yaml:"stale_after_ms"`
}

// ---- ANALYZER ----

type AnalyzerConfig struct {
	Mode string `yaml:"mode"` // only "manual"

	CoarseIntegrationTime uint32 `yaml:"coarse_integration_time"`
	AnalogGain            uint32 `yaml:"analog_gain"`
	DigitalGain           uint32 `yaml:"digital_gain"`
	FrameLineLength       uint32 `yaml:"frame_line_length"`

	FocusPosition *int32   `yaml:"focus_position"`
	EnableModules []string `yaml:"enable_modules"`
}

// ---- STATUS BLOCK ----

type StatusConfig struct {
	Endpoint   string `yaml:"endpoint"` // tcp://host:port or rtu:///dev/ttyX
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	DeviceName string `yaml:"device_name"`
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	BaudRate   int    `yaml:"baud_rate"` // rtu only
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
