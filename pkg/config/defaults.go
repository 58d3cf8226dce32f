package config

const (
	defaultDifyBaseURL     = "https://api.dify.ai/v1"
	defaultDifyUser        = "default"
	defaultTimeoutSeconds  = 30
	defaultMaxConns        = 100
	defaultMaxConnsPerHost = 10

	defaultRetryAttempts = 3
	defaultRetryDelayMS  = 1000

	defaultProxyListen = ":8080"
	defaultAPIListen   = ":8081"
	defaultCORSOrigins = "*"

	defaultClientProxyTarget = "http://localhost:8080"
	defaultClientAPITarget   = "http://localhost:8081"

	// EventStreamNone disables event publishing.
	EventStreamNone = "none"

	// EventStreamKafka publishes to Kafka.
	EventStreamKafka = "kafka"

	defaultEventStreamTopic = "wenshu.chat"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Dify: DifyConfig{
			BaseURL:         defaultDifyBaseURL,
			User:            defaultDifyUser,
			TimeoutSeconds:  defaultTimeoutSeconds,
			MaxConns:        defaultMaxConns,
			MaxConnsPerHost: defaultMaxConnsPerHost,
		},
		Retry: RetryConfig{
			MaxAttempts: defaultRetryAttempts,
			DelayMS:     defaultRetryDelayMS,
		},
		Proxy: ProxyConfig{
			Listen:      defaultProxyListen,
			CORSOrigins: defaultCORSOrigins,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
			APITarget:   defaultClientAPITarget,
		},
		EventStream: EventStreamConfig{
			Provider: EventStreamNone,
			Topic:    defaultEventStreamTopic,
		},
	}
}
