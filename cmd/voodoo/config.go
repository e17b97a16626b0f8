package main

import (
	"io/ioutil"
	"time"

	"github.com/Comcast/voodoo/observe"

	"gopkg.in/yaml.v2"
)

// Config is the optional engine configuration file.
type Config struct {
	Extended bool `yaml:"extended"`
	Testing  bool `yaml:"testing"`
	Debug    bool `yaml:"debug"`

	// LibDir is where required libraries are found.
	LibDir string `yaml:"libDir"`

	// Timeout limits the synchronous part of each invocation.
	Timeout time.Duration `yaml:"timeout"`

	// Wait limits how long to wait for continuations when a job
	// doesn't say.
	Wait time.Duration `yaml:"wait"`

	MQTT *observe.MQTTConfig `yaml:"mqtt,omitempty"`

	// WS is the address for the WebSocket event service.
	WS string `yaml:"ws,omitempty"`

	// DB is a bolt filename for storing runs.
	DB string `yaml:"db,omitempty"`

	// CSS files to link from HTML reports.
	CSS []string `yaml:"css,omitempty"`
}

var DefaultConfig = Config{
	Extended: true,
	LibDir:   ".",
	Timeout:  5 * time.Second,
	Wait:     10 * time.Second,
}

// LoadConfig reads a configuration file.  An empty filename gives
// the DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	if filename == "" {
		return &c, nil
	}
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err = yaml.UnmarshalStrict(bs, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
