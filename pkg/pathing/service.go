package pathing

import "os"

const ConfigDirEnv = "SML_METER_CONFIG_DIR"

func GetConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	return "/etc/sml_smart_meter"
}

// Ensure the config directory exists.
func EnsureConfigDir() error {
	return os.MkdirAll(GetConfigDir(), 0755)
}
