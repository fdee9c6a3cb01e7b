package config

import "time"

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			BodyLimit:       "60M",
			ReadTimeout:     2 * time.Minute,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 50 << 20,
			BasicAuth: BasicAuthConfig{
				Hosts: []string{"api.twilio.com"},
			},
		},
		AI: AIConfig{
			APIBase:            "https://api.openai.com/v1",
			ChatModel:          "gpt-4.1-mini",
			TranscriptionModel: "whisper-1",
			Timeout:            60 * time.Second,
			MaxRetries:         1,
			MaxTokens:          1000,
			VisionPrompt:       "Descreva esta imagem em detalhes.",
			SummaryChars:       4000,
		},
		Chatwoot: ChatwootConfig{
			Timeout:     30 * time.Second,
			AttachMedia: true,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
			Path:    "/metrics",
		},
	}
}
