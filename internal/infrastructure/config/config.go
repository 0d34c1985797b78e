package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ACS Auto.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Station   StationConfig     `yaml:"station"`
	General   GeneralConfig     `yaml:"general"`
	Templates map[string]string `yaml:"templates"`
	Devices   DevicesConfig     `yaml:"devices"`
	Target    TargetConfig      `yaml:"target"`
	Hotkeys   HotkeysConfig     `yaml:"hotkeys"`
	Dataset   DatasetConfig     `yaml:"dataset"`
	Macros    MacrosConfig      `yaml:"macros"`
	Database  DatabaseConfig    `yaml:"database"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	API       APIConfig         `yaml:"api"`
	WebSocket WebSocketConfig   `yaml:"websocket"`
	InfluxDB  InfluxDBConfig    `yaml:"influxdb"`
	Logging   LoggingConfig     `yaml:"logging"`
	Security  SecurityConfig    `yaml:"security"`
}

// StationConfig identifies the workstation running the automation.
// The ID is used in MQTT topics and metric tags.
type StationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GeneralConfig contains the automation tunables.
//
// Values are stored in seconds to keep the file readable by operators who
// tune delays by hand; use Automation() for typed durations.
type GeneralConfig struct {
	IconFolder          string  `yaml:"icon_folder"`
	ImageFolder         string  `yaml:"image_folder"`
	ScreenshotDelaySec  float64 `yaml:"screenshot_delay_sec"`
	ActionDelaySec      float64 `yaml:"action_delay_sec"`
	FindImageConfidence float64 `yaml:"find_image_confidence"`
	TypeIntervalSec     float64 `yaml:"type_interval_sec"`

	// StepTimeoutSec bounds one macro step, including pure script loops.
	StepTimeoutSec float64 `yaml:"step_timeout_sec"`

	// ErrorPolicy decides what a capture or compare fault does to a search:
	// "continue" logs and moves on, "abort" ends the search with failure.
	ErrorPolicy string `yaml:"error_policy"`
}

// DevicesConfig configures the device discovery list and the device
// property pickers of the target application.
type DevicesConfig struct {
	// TitleKey is the template key locating the discovery list region.
	TitleKey        string  `yaml:"title_key"`
	TitleConfidence float64 `yaml:"title_confidence"`

	LedKey       string `yaml:"led_key"`
	PumpKey      string `yaml:"pump_key"`
	ConverterKey string `yaml:"converter_key"`

	// TypeFieldKey and PowerFieldKey open the drop-downs; Types and Powers
	// map a display value to the template key of its list entry.
	TypeFieldKey  string            `yaml:"type_field_key"`
	PowerFieldKey string            `yaml:"power_field_key"`
	Types         map[string]string `yaml:"types"`
	Powers        map[string]string `yaml:"powers"`

	AddressFieldKey  string `yaml:"address_field_key"`
	AddressSubmitKey string `yaml:"address_submit_key"`
}

// TargetConfig describes the automated desktop application.
type TargetConfig struct {
	WindowTitle string `yaml:"window_title"`

	// ProcessName narrows the window search to matching processes.
	// Empty searches every process.
	ProcessName string       `yaml:"process_name"`
	Launch      LaunchConfig `yaml:"launch"`
}

// LaunchConfig contains settings for starting the target application.
type LaunchConfig struct {
	// Enabled starts the target from Binary and restarts it if it exits.
	// If false, the application is expected to be started by the operator.
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	WorkDir string   `yaml:"work_dir"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int  `yaml:"max_restart_attempts"`
}

// HotkeysConfig maps global keys to actions.
type HotkeysConfig struct {
	Enabled bool `yaml:"enabled"`

	// Stop toggles the stop signal.
	Stop string `yaml:"stop"`

	// Categories maps a macro category to the key that runs its active macro.
	Categories map[string]string `yaml:"categories"`

	// Clicks are fixed-offset clicks inside the target window.
	Clicks []HotkeyClick `yaml:"clicks"`
}

// HotkeyClick binds a key to a click at an offset from the target window origin.
type HotkeyClick struct {
	Key string `yaml:"key"`
	X   int    `yaml:"x"`
	Y   int    `yaml:"y"`
}

// DatasetConfig contains work-list settings.
type DatasetConfig struct {
	AutoIncrement bool   `yaml:"auto_increment"`
	ImportPath    string `yaml:"import_path"`
	Sheet         string `yaml:"sheet"`
}

// MacrosConfig selects where macros are persisted.
type MacrosConfig struct {
	// Backend is "sqlite" (stored in the database) or "json" (stored in File).
	Backend string `yaml:"backend"`
	File    string `yaml:"file"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// SecurityConfig contains security settings for the control API.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// APIKey is exchanged for a JWT at POST /api/v1/auth/token.
	APIKey string `yaml:"api_key"`
}

// JWTConfig contains JWT token settings.
// An empty secret disables authentication, which is only accepted when the
// API listens on a loopback address.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ACSAUTO_SECTION_KEY
// For example: ACSAUTO_DATABASE_PATH, ACSAUTO_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// parse decodes YAML over the defaults.
//
// Maps are left nil in the defaults so a file that lists its own templates
// or device maps replaces them instead of merging into them.
func parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	fillDefaultMaps(cfg)
	return cfg, nil
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	cfg := defaultConfig()
	fillDefaultMaps(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			ID:   "station-001",
			Name: "ACS bench",
		},
		General: GeneralConfig{
			IconFolder:          "icons",
			ImageFolder:         "images",
			ScreenshotDelaySec:  0.5,
			ActionDelaySec:      0.2,
			FindImageConfidence: 0.9,
			TypeIntervalSec:     0.05,
			StepTimeoutSec:      600,
			ErrorPolicy:         ErrorPolicyContinue,
		},
		Devices: DevicesConfig{
			TitleKey:         "device_discovery_title",
			TitleConfidence:  0.8,
			LedKey:           "tricolor_led_item",
			PumpKey:          "afvarionaut_pump_item",
			ConverterKey:     "dmx2vfd_item",
			TypeFieldKey:     "device_type_field",
			PowerFieldKey:    "device_power_field",
			AddressFieldKey:  "dmx_slave_address_field",
			AddressSubmitKey: "set_dmx_slave_address_btn",
		},
		Target: TargetConfig{
			WindowTitle: "ACS Device Configuration - Version 1.5.0",
			Launch: LaunchConfig{
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		Hotkeys: HotkeysConfig{
			Enabled: true,
			Stop:    "esc",
		},
		Dataset: DatasetConfig{
			AutoIncrement: true,
		},
		Macros: MacrosConfig{
			Backend: MacroBackendSQLite,
			File:    "./data/scripts.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/acsauto.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "acsauto",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

func fillDefaultMaps(cfg *Config) {
	if cfg.Templates == nil {
		cfg.Templates = defaultTemplates()
	}
	if cfg.Devices.Types == nil {
		cfg.Devices.Types = defaultDeviceTypes()
	}
	if cfg.Devices.Powers == nil {
		cfg.Devices.Powers = defaultDevicePowers()
	}
	if cfg.Hotkeys.Categories == nil {
		cfg.Hotkeys.Categories = map[string]string{
			"uid_col1":     "f1",
			"uid_col2":     "f2",
			"address":      "f3",
			"test":         "f4",
			"address_test": "f5",
		}
	}
	if cfg.Hotkeys.Clicks == nil {
		cfg.Hotkeys.Clicks = []HotkeyClick{
			{Key: "f7", X: 520, Y: 220},
			{Key: "f8", X: 560, Y: 220},
			{Key: "f9", X: 610, Y: 220},
			{Key: "f10", X: 650, Y: 220},
		}
	}
}

// defaultTemplates lists the reference images shipped with the tool.
// Values are comma-joined filenames relative to general.image_folder.
func defaultTemplates() map[string]string {
	return map[string]string{
		"connected":                      "connected.png",
		"on_off_btn":                     "on_off_btn.png",
		"discover_btn":                   "discover_blue.png,discover_white.png",
		"device_discovery_title":         "device_discovery_title.png",
		"device_discovery_title_1":       "device_discovery_title_1.png",
		"scan_btn":                       "scan_btn.png",
		"discovery_completed_text":       "discovery_completed_text.png",
		"tricolor_led_item":              "tricolor_led_item.png",
		"afvarionaut_pump_item":          "afvarionaut_pump_item.png",
		"dmx2vfd_item":                   "dmx2vfd_item.png",
		"dmx_slave_address_field":        "dmx_slave_address_field.png",
		"set_dmx_slave_address_btn":      "set_dmx_slave_address_btn.png",
		"run_dmx_test_btn":               "run_dmx_test_btn.png",
		"stop_dmx_test_btn":              "stop_dmx_test_btn.png",
		"dmx_slider_0":                   "dmx_slider_0.png",
		"dmx_slider_0_2":                 "dmx_slider_0_2.png",
		"dmx_slider_1":                   "dmx_slider_1.png",
		"dmx_slider_2":                   "dmx_slider_2.png",
		"dmx_slider_3":                   "dmx_slider_3.png",
		"selec_all_1":                    "selec_all_1.png",
		"selec_all_2":                    "selec_all_2.png",
		"acs_device_manager_title":       "acs_device_manager_title.png",
		"acs_device_configuration_title": "acs_device_configuration_title.png",
		"acs_device_configuration":       "acs_device_configuration.png",
		"acs_device_manager_1":           "acs_device_manager_1.png",
		"acs_device_manager_2":           "acs_device_manager_2.png",
		"close_window_btn":               "close_window_btn.png",
		"load_btn":                       "Load.png",
		"list":                           "List.png",
		"add_btn":                        "Add.png",
		"adl_file":                       "Adl.png",
		"open_adl_btn":                   "Open.png",
		"generate_btn":                   "Generate.png",
		"device_type_field":              "Device type.png",
		"afvarionaut_pump_type_btn":      "AFVarionaut Pump.png",
		"submersible_pump_type_btn":      "Submersible Pump.png",
		"tricolor_led_type_btn":          "Tricolor Led.png",
		"singlecolor_led_type_btn":       "SingleColor Led.png",
		"dmx2vfd_converter_type_btn":     "Dmx2Vfd Converter.png",
		"device_power_field":             "Device power.png",
		"6w_power_btn":                   "6W.png",
		"12w_power_btn":                  "12W.png",
		"18w_power_btn":                  "18W.png",
		"36w_power_btn":                  "36W.png",
		"60w_power_btn":                  "60W.png",
		"100w_power_btn":                 "100W.png",
		"120w_power_btn":                 "120W.png",
		"140w_power_btn":                 "140W.png",
		"150w_power_btn":                 "150W.png",
		"160w_power_btn":                 "160W.png",
		"200w_power_btn":                 "200W.png",
		"unspecified_power_btn":          "Unspecified.png",
		"write_btn":                      "Write.png",
		"save_btn":                       "Save.png",
		"successfully_text":              "Successfully text.png",
	}
}

func defaultDeviceTypes() map[string]string {
	return map[string]string{
		"AFVarionaut Pump":  "afvarionaut_pump_type_btn",
		"Submersible Pump":  "submersible_pump_type_btn",
		"Tricolor Led":      "tricolor_led_type_btn",
		"SingleColor Led":   "singlecolor_led_type_btn",
		"Dmx2Vfd Converter": "dmx2vfd_converter_type_btn",
	}
}

func defaultDevicePowers() map[string]string {
	powers := map[string]string{"Unspecified": "unspecified_power_btn"}
	for _, w := range []string{"6", "12", "18", "36", "60", "100", "120", "140", "150", "160", "200"} {
		powers[w] = w + "w_power_btn"
	}
	return powers
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ACSAUTO_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Station
	if v := os.Getenv("ACSAUTO_STATION_ID"); v != "" {
		cfg.Station.ID = v
	}

	// Automation
	if v := os.Getenv("ACSAUTO_IMAGE_FOLDER"); v != "" {
		cfg.General.ImageFolder = v
	}

	// Database
	if v := os.Getenv("ACSAUTO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ACSAUTO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ACSAUTO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ACSAUTO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ACSAUTO_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ACSAUTO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("ACSAUTO_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("ACSAUTO_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
}

// Error policy values for general.error_policy.
const (
	ErrorPolicyContinue = "continue"
	ErrorPolicyAbort    = "abort"
)

// Macro backend values for macros.backend.
const (
	MacroBackendSQLite = "sqlite"
	MacroBackendJSON   = "json"
)

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Station.ID == "" {
		errs = append(errs, "station.id is required")
	}

	// Automation tunables
	g := c.General
	if g.ImageFolder == "" {
		errs = append(errs, "general.image_folder is required")
	}
	if g.FindImageConfidence <= 0 || g.FindImageConfidence > 1 {
		errs = append(errs, "general.find_image_confidence must be in (0, 1]")
	}
	if g.ScreenshotDelaySec < 0 || g.ActionDelaySec < 0 || g.TypeIntervalSec < 0 || g.StepTimeoutSec < 0 {
		errs = append(errs, "general delays must not be negative")
	}
	if g.ErrorPolicy != ErrorPolicyContinue && g.ErrorPolicy != ErrorPolicyAbort {
		errs = append(errs, "general.error_policy must be continue or abort")
	}
	for key := range c.Templates {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, "templates keys must not be empty")
			break
		}
	}
	if c.Devices.TitleConfidence <= 0 || c.Devices.TitleConfidence > 1 {
		errs = append(errs, "devices.title_confidence must be in (0, 1]")
	}

	// Macros
	switch c.Macros.Backend {
	case MacroBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite macro backend")
		}
	case MacroBackendJSON:
		if c.Macros.File == "" {
			errs = append(errs, "macros.file is required for the json macro backend")
		}
	default:
		errs = append(errs, "macros.backend must be sqlite or json")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		// The API can start runs that move the mouse, so an open listener
		// needs authentication.
		if c.Security.JWT.Secret == "" && !isLoopback(c.API.Host) {
			errs = append(errs, "security.jwt.secret is required when api.host is not loopback (set ACSAUTO_JWT_SECRET)")
		}
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.Target.Launch.Enabled && c.Target.Launch.Binary == "" {
		errs = append(errs, "target.launch.binary is required when launch is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetAccessTokenTTL returns the JWT lifetime as a Duration.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
