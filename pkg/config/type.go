package config

type MeterCollectorConfig struct {
	ReaderAPIHost string `toml:"reader_api_host"`
	LogLevel      string `toml:"log_level"`
}

type ReaderConfig struct {
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`
	// Bytes; must hold the largest transmission of the meter.
	FrameCapacity            int    `toml:"frame_capacity"`
	PublishEveryFrames       int    `toml:"publish_every_frames"`
	VerifyCRC                bool   `toml:"verify_crc"`
	InactivityTimeoutSeconds int    `toml:"inactivity_timeout_seconds"`
	ListenAddress            string `toml:"listen_address"`
	ListenPort               int    `toml:"listen_port"`
	DeviceName               string `toml:"device_name"`
	LogLevel                 string `toml:"log_level"`

	// Telemetry sinks, each disabled while left empty.
	InfluxURL     string `toml:"influx_url"`
	InfluxToken   string `toml:"influx_token"`
	InfluxOrg     string `toml:"influx_org"`
	InfluxBucket  string `toml:"influx_bucket"`
	MQTTHost      string `toml:"mqtt_host"`
	MQTTPort      int    `toml:"mqtt_port"`
	MQTTUsername  string `toml:"mqtt_username"`
	MQTTPassword  string `toml:"mqtt_password"`
	MQTTBaseTopic string `toml:"mqtt_base_topic"`
}
