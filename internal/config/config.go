package config

import "time"

// Config holds server configuration values.
type Config struct {
	// ListenAddr is the TCP chat listener address.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// HTTPAddr serves the observer API and the WebSocket bridge.
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	DefaultRoom         string `mapstructure:"default_room" yaml:"default_room"`
	DefaultRoomCapacity int    `mapstructure:"default_room_capacity" yaml:"default_room_capacity"`
	RoomCapacity        int    `mapstructure:"room_capacity" yaml:"room_capacity"`
	HistorySize         int    `mapstructure:"history_size" yaml:"history_size"`
	HistoryReplay       int    `mapstructure:"history_replay" yaml:"history_replay"`

	MaxFrameSize      int  `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	OutboundQueueSize int  `mapstructure:"outbound_queue_size" yaml:"outbound_queue_size"`
	EchoMessages      bool `mapstructure:"echo_messages" yaml:"echo_messages"`

	Admins       []string `mapstructure:"admins" yaml:"admins"`
	FlagPatterns []string `mapstructure:"flag_patterns" yaml:"flag_patterns"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ListenAddr:          ":12345",
		HTTPAddr:            ":8080",
		LogLevel:            "info",
		DatabasePath:        "drevoid.db",
		DefaultRoom:         "general",
		DefaultRoomCapacity: 100,
		RoomCapacity:        50,
		HistorySize:         200,
		HistoryReplay:       20,
		MaxFrameSize:        1 << 20,
		OutboundQueueSize:   64,
		EchoMessages:        false,
		JWTSecret:           "change-me",
		JWTIssuer:           "drevoid",
		JWTAudience:         "drevoid-clients",
		JWTTTL:              24 * time.Hour,
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
	}
}
