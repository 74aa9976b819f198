// Package config loads, validates and persists the gateway configuration.
package config

import (
	"time"
)

// Config is the complete gateway configuration.
type Config struct {
	Listen   Listen   `mapstructure:"listen" yaml:"listen"`
	DataDir  string   `mapstructure:"datadir" yaml:"datadir" validate:"required"`
	Logfile  string   `mapstructure:"logfile" yaml:"logfile"`
	LogLevel string   `mapstructure:"loglevel" yaml:"loglevel" validate:"omitempty,oneof=trace debug info warn error"`
	Stash    Stash    `mapstructure:"stash" yaml:"stash"`
	Jellyfin Jellyfin `mapstructure:"jellyfin" yaml:"jellyfin"`
	Library  Library  `mapstructure:"library" yaml:"library"`
	Auth     Auth     `mapstructure:"auth" yaml:"auth"`
	Admin    Admin    `mapstructure:"admin" yaml:"admin"`
	Images   Images   `mapstructure:"images" yaml:"images"`
}

// Listen holds the http listener settings.
type Listen struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	TlsCert string `mapstructure:"tlscert" yaml:"tlscert"`
	TlsKey  string `mapstructure:"tlskey" yaml:"tlskey"`
	// TrustedProxies are the networks whose forwarded client address headers are honoured.
	TrustedProxies []string `mapstructure:"trustedproxies" yaml:"trustedproxies" validate:"dive,cidr"`
}

// Stash holds the backend connection settings.
type Stash struct {
	URL        string        `mapstructure:"url" yaml:"url" validate:"required,url"`
	ApiKey     string        `mapstructure:"apikey" yaml:"apikey"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	MaxRetries int           `mapstructure:"maxretries" yaml:"maxretries" validate:"min=0,max=10"`
}

// Jellyfin holds the emulated server identity and the single login.
type Jellyfin struct {
	// ServerName is name of server returned in info responses
	ServerName string `mapstructure:"servername" yaml:"servername"`
	// ServerID is returned as server id, derived from the server name when empty
	ServerID string `mapstructure:"serverid" yaml:"serverid"`
	Username string `mapstructure:"username" yaml:"username" validate:"required"`
	// Password is either plain text or a bcrypt hash
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
}

// Library controls what the catalog exposes.
type Library struct {
	// Collections are the enabled top level collections, in display order.
	Collections []string `mapstructure:"collections" yaml:"collections" validate:"dive,oneof=scenes studios performers groups tags"`
	// TagGroups are tag names shown as their own top level library.
	TagGroups []string `mapstructure:"taggroups" yaml:"taggroups"`
	// Latest lists the collections that take part in "latest" surfacing.
	Latest []string `mapstructure:"latest" yaml:"latest"`
	// Filters lists the modes for which saved filters are browsable.
	Filters []string `mapstructure:"filters" yaml:"filters" validate:"dive,oneof=scenes studios performers groups"`
}

// Auth controls failed login accounting.
type Auth struct {
	BanThreshold int           `mapstructure:"banthreshold" yaml:"banthreshold" validate:"min=1"`
	BanWindow    time.Duration `mapstructure:"banwindow" yaml:"banwindow" validate:"min=1s"`
}

// Admin holds the admin API settings.
type Admin struct {
	// Password gates the config view, admin API is open when empty.
	Password string `mapstructure:"password" yaml:"password"`
}

// Images controls artwork processing.
type Images struct {
	// Pad pads posters and thumbnails to the aspect ratio clients expect.
	Pad     bool `mapstructure:"pad" yaml:"pad"`
	Quality int  `mapstructure:"quality" yaml:"quality" validate:"min=1,max=100"`
}

// Default returns the configuration used for keys missing from file and environment.
func Default() Config {
	return Config{
		Listen:   Listen{Port: 8096},
		DataDir:  ".",
		LogLevel: "info",
		Stash: Stash{
			URL:        "http://localhost:9999",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Jellyfin: Jellyfin{
			ServerName: "Stashfin",
		},
		Library: Library{
			Collections: []string{"scenes", "studios", "performers", "groups", "tags"},
			Latest:      []string{"scenes"},
			Filters:     []string{"scenes", "studios", "performers", "groups"},
		},
		Auth: Auth{
			BanThreshold: 10,
			BanWindow:    15 * time.Minute,
		},
		Images: Images{
			Pad:     true,
			Quality: 90,
		},
	}
}
