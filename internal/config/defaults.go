package config

const (
	defaultAddr                     = ":8080"
	defaultMaxMessageSize           = 64 * 1024
	defaultSendBuffer               = 256
	defaultWriteWaitSeconds         = 10
	defaultPongWaitSeconds          = 60
	defaultMessagesPerSecond        = 60
	defaultBurst                    = 120
	defaultHistoryBackend           = BackendMemory
	defaultRetentionIntervalMinutes = 10
	defaultLogLevel                 = "info"
	defaultLogFormat                = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           defaultAddr,
			AllowedOrigins: []string{"*"},
		},
		WebSocket: WebSocket{
			MaxMessageSize:   defaultMaxMessageSize,
			SendBuffer:       defaultSendBuffer,
			WriteWaitSeconds: defaultWriteWaitSeconds,
			PongWaitSeconds:  defaultPongWaitSeconds,
		},
		RateLimit: RateLimit{
			MessagesPerSecond: defaultMessagesPerSecond,
			Burst:             defaultBurst,
		},
		History: History{
			Backend:                  defaultHistoryBackend,
			RetentionIntervalMinutes: defaultRetentionIntervalMinutes,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
