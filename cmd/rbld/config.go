package main

import (
	"bytes"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// config is the on-disk startup configuration: listen
// address, upstream forwarder, RBL zone set, aggregate zones, custom-RBL
// zone, cache backend selection and logging.
type config struct {
	// ListenAddress defaults to "0.0.0.0:8053" in buildServer when empty.
	ListenAddress string `toml:"listen-address"`

	// Upstream defaults to "8.8.8.8:53" in buildServer when empty.
	Upstream           string `toml:"upstream-resolver"`
	AggregateTimeoutMs int    `toml:"aggregate-timeout-ms"`
	LogLevel           string `toml:"log-level"`

	RBLs       []configRBL           `toml:"rbl"`
	Aggregates []configAggregateZone `toml:"aggregate-zone"`
	CustomRBL  configCustomRBL       `toml:"custom-rbl"`

	Cache configCache `toml:"cache"`
}

type configRBL struct {
	Name        string `toml:"name"`
	Host        string `toml:"host"`
	Description string `toml:"description"`
}

type configAggregateZone struct {
	Domain      string   `toml:"domain"`
	Description string   `toml:"description"`
	Rbls        []string `toml:"rbls"`
}

type configCustomRBL struct {
	ZoneName string `toml:"zone-name"`
	Enabled  bool   `toml:"enabled"`
}

type configCache struct {
	L1Capacity int    `toml:"l1-capacity"`
	L1GCPeriod int    `toml:"l1-gc-period-seconds"`
	RedisAddr  string `toml:"redis-address"`
	RedisDB    int    `toml:"redis-db"`
	KeyPrefix  string `toml:"redis-key-prefix"`
}

func loadConfig(name ...string) (config, error) {
	b := new(bytes.Buffer)
	var c config
	for _, fn := range name {
		if err := loadFile(b, fn); err != nil {
			return c, err
		}
		b.WriteString("\n")
	}
	_, err := toml.DecodeReader(b, &c)
	return c, err
}

func loadFile(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
