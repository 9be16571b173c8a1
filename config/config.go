package config

import (
	"os"

	"github.com/allape/opencam/envar"
	"github.com/allape/opencam/logger"
	"github.com/pelletier/go-toml/v2"
)

var log = logger.New("[config]")

const DefaultConfigPath = "opencam.toml"

type CameraDriverType string

const (
	CameraSim CameraDriverType = "sim"
)

type TriggerDriverType string

const (
	TriggerNone       TriggerDriverType = "none"
	TriggerSerialPort TriggerDriverType = "serialport"
)

type SinkType string

const (
	SinkRing SinkType = "ring"
)

type Server struct {
	Addr string `toml:"addr"`
	Path string `toml:"path"`
	Cors bool   `toml:"cors"`
}

type Camera struct {
	Type   CameraDriverType `toml:"type"`
	Model  string           `toml:"model"`
	Width  int              `toml:"width"`
	Height int              `toml:"height"`

	// ReadoutTimeMs is the minimum delay between a capture and the buffer
	// readout, in milliseconds.
	ReadoutTimeMs int `toml:"readout_time_ms"`

	// MultiROI enables the multi-rectangle region capability.
	MultiROI bool `toml:"multi_roi"`
	// MultiROIFill is the byte value masking pixels outside the rectangles.
	MultiROIFill int `toml:"multi_roi_fill"`

	// FontPath optionally names a TrueType font for the frame overlay.
	FontPath string `toml:"font_path"`
	// Label drawn on each frame when a font is configured.
	Label string `toml:"label"`

	Ext TagString `toml:"ext"`
}

type Trigger struct {
	Type TriggerDriverType `toml:"type"`
	// Src is the serial port name, e.g. "/dev/ttyUSB0".
	Src string    `toml:"src"`
	Ext TagString `toml:"ext"`
}

type Sink struct {
	Type SinkType `toml:"type"`
	// Capacity of the ring in frames.
	Capacity int `toml:"capacity"`
	// StopOnOverflow aborts a run when the ring fills instead of clearing
	// it and retrying.
	StopOnOverflow bool `toml:"stop_on_overflow"`
}

type MQTT struct {
	// Broker address, e.g. "tcp://127.0.0.1:1883". Empty disables
	// publishing.
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Config struct {
	Server  Server  `toml:"server"`
	Camera  Camera  `toml:"camera"`
	Trigger Trigger `toml:"trigger"`
	Sink    Sink    `toml:"sink"`
	MQTT    MQTT    `toml:"mqtt"`
}

func GetConfig() (Config, error) {
	configFile := DefaultConfigPath
	if env := os.Getenv(envar.OpencamConfig); env != "" {
		configFile = env
	}
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	log.Println("reading config file:", configFile)

	config := Config{
		Server: Server{
			Addr: ":8080",
			Path: "/stream",
		},
		Camera: Camera{
			Type:   CameraSim,
			Width:  512,
			Height: 512,
		},
		Trigger: Trigger{
			Type: TriggerNone,
		},
		Sink: Sink{
			Type:     SinkRing,
			Capacity: 32,
		},
	}

	_, err := os.Stat(configFile)
	if err != nil {
		return config, err
	}

	configData, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}

	err = toml.Unmarshal(configData, &config)
	if err != nil {
		return config, err
	}

	log.Println("use config:", config)

	return config, nil
}
