package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStderr  bool   `yaml:"trace_stderr"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Host        HostConfig       `yaml:"host"`
	Output      OutputConfig     `yaml:"output"`
	TTS         TTSConfig        `yaml:"tts"`
	Summarizer  SummarizerConfig `yaml:"summarizer"`
	Journal     JournalConfig    `yaml:"journal"`
	Bus         BusConfig        `yaml:"bus"`
}

type HostConfig struct {
	MaxMessageBytes int `yaml:"max_message_bytes"`
	MinTextChars    int `yaml:"min_text_chars"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"` // wav, mp3
	ErrorLog  string `yaml:"error_log"`
}

type TTSConfig struct {
	Mode             string       `yaml:"mode"` // piper, exec, openai, mock
	Voice            string       `yaml:"voice"`
	SampleRate       int          `yaml:"sample_rate"`
	Channels         int          `yaml:"channels"`
	LengthScale      float64      `yaml:"length_scale"`
	SentenceSilence  float64      `yaml:"sentence_silence"`
	ParagraphSilence float64      `yaml:"paragraph_silence"`
	ChunkSize        int          `yaml:"chunk_size"`
	TimeoutSeconds   int          `yaml:"timeout_seconds"`
	Piper            PiperConfig  `yaml:"piper"`
	Exec             ExecConfig   `yaml:"exec"`
	OpenAI           OpenAIConfig `yaml:"openai"`
}

type PiperConfig struct {
	Command string `yaml:"command"`
	Python  string `yaml:"python"`
	Model   string `yaml:"model"`
}

type ExecConfig struct {
	Command string `yaml:"command"`
}

type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Voice     string `yaml:"voice"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type SummarizerConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Mode            string  `yaml:"mode"` // api, ollama, exec, mock
	UseSDK          bool    `yaml:"use_sdk"`
	SDKBaseURL      string  `yaml:"sdk_base_url"`
	Endpoint        string  `yaml:"endpoint"`
	Command         string  `yaml:"command"`
	ModelQuick      string  `yaml:"model_quick"`
	ModelDeep       string  `yaml:"model_deep"`
	MaxTokensQuick  int     `yaml:"max_tokens_quick"`
	MaxTokensDeep   int     `yaml:"max_tokens_deep"`
	Temperature     float64 `yaml:"temperature"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	CredentialsFile string  `yaml:"credentials_file"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRequests   int    `yaml:"max_requests"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

// DefaultPath is where the host looks for a config file when none is given.
func DefaultPath() string {
	return expandPath("~/.config/audio-briefer/briefer.yaml")
}

func Default() Config {
	return Config{
		RuntimeName: "audio-briefer",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Host: HostConfig{
			MaxMessageBytes: 64 << 20,
			MinTextChars:    50,
		},
		Output: OutputConfig{
			Directory: "~/Downloads/audio-briefings",
			Format:    "wav",
			ErrorLog:  "errors.log",
		},
		TTS: TTSConfig{
			Mode:             "piper",
			Voice:            "en_US-lessac-medium",
			SampleRate:       22050,
			Channels:         1,
			LengthScale:      0.7,
			SentenceSilence:  0.2,
			ParagraphSilence: 0.6,
			ChunkSize:        16384,
			TimeoutSeconds:   300,
			Piper: PiperConfig{
				Python: "~/.local/share/audio-briefer/.venv/bin/python",
				Model:  "~/.local/share/piper/en_US-lessac-medium.onnx",
			},
			OpenAI: OpenAIConfig{
				Model:     "tts-1",
				Voice:     "alloy",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		},
		Summarizer: SummarizerConfig{
			Enabled:         false,
			Mode:            "api",
			UseSDK:          true,
			SDKBaseURL:      "https://api.anthropic.com/v1/",
			Endpoint:        "https://api.anthropic.com",
			ModelQuick:      "claude-3-5-haiku-latest",
			ModelDeep:       "claude-3-5-sonnet-latest",
			MaxTokensQuick:  600,
			MaxTokensDeep:   1600,
			Temperature:     0.3,
			APIKeyEnv:       "ANTHROPIC_API_KEY",
			CredentialsFile: "~/.config/audio-briefer/credentials.env",
			TimeoutSeconds:  120,
		},
		Journal: JournalConfig{
			Path:          "~/.local/share/audio-briefer/journal.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRequests:   5000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "briefer.status",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(expandPath(path))
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	expandPaths(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when given. Otherwise it loads the file at
// DefaultPath if one exists, or the built-in defaults.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}
	return Load(path)
}

// LogLevel maps telemetry.log_level onto slog, defaulting to info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Telemetry.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ErrorLogPath resolves the error log against the output directory.
func (c Config) ErrorLogPath() string {
	if c.Output.ErrorLog == "" || filepath.IsAbs(c.Output.ErrorLog) {
		return c.Output.ErrorLog
	}
	return filepath.Join(c.Output.Directory, c.Output.ErrorLog)
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "BRIEFER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "BRIEFER_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "BRIEFER_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "BRIEFER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BRIEFER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "BRIEFER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BRIEFER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BRIEFER_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStderr, "BRIEFER_TELEMETRY_TRACE_STDERR")
	overrideInt(&cfg.Host.MaxMessageBytes, "BRIEFER_HOST_MAX_MESSAGE_BYTES")
	overrideInt(&cfg.Host.MinTextChars, "BRIEFER_HOST_MIN_TEXT_CHARS")
	overrideString(&cfg.Output.Directory, "BRIEFER_OUTPUT_DIRECTORY")
	overrideString(&cfg.Output.Format, "BRIEFER_OUTPUT_FORMAT")
	overrideString(&cfg.Output.ErrorLog, "BRIEFER_OUTPUT_ERROR_LOG")
	overrideString(&cfg.TTS.Mode, "BRIEFER_TTS_MODE")
	overrideString(&cfg.TTS.Voice, "BRIEFER_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "BRIEFER_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "BRIEFER_TTS_CHANNELS")
	overrideFloat(&cfg.TTS.LengthScale, "BRIEFER_TTS_LENGTH_SCALE")
	overrideFloat(&cfg.TTS.SentenceSilence, "BRIEFER_TTS_SENTENCE_SILENCE")
	overrideFloat(&cfg.TTS.ParagraphSilence, "BRIEFER_TTS_PARAGRAPH_SILENCE")
	overrideInt(&cfg.TTS.ChunkSize, "BRIEFER_TTS_CHUNK_SIZE")
	overrideInt(&cfg.TTS.TimeoutSeconds, "BRIEFER_TTS_TIMEOUT_SECONDS")
	overrideString(&cfg.TTS.Piper.Command, "BRIEFER_TTS_PIPER_COMMAND")
	overrideString(&cfg.TTS.Piper.Python, "BRIEFER_TTS_PIPER_PYTHON")
	overrideString(&cfg.TTS.Piper.Model, "BRIEFER_TTS_PIPER_MODEL")
	overrideString(&cfg.TTS.Exec.Command, "BRIEFER_TTS_EXEC_COMMAND")
	overrideString(&cfg.TTS.OpenAI.BaseURL, "BRIEFER_TTS_OPENAI_BASE_URL")
	overrideString(&cfg.TTS.OpenAI.Model, "BRIEFER_TTS_OPENAI_MODEL")
	overrideString(&cfg.TTS.OpenAI.Voice, "BRIEFER_TTS_OPENAI_VOICE")
	overrideString(&cfg.TTS.OpenAI.APIKeyEnv, "BRIEFER_TTS_OPENAI_API_KEY_ENV")
	overrideBool(&cfg.Summarizer.Enabled, "BRIEFER_SUMMARIZER_ENABLED")
	overrideString(&cfg.Summarizer.Mode, "BRIEFER_SUMMARIZER_MODE")
	overrideBool(&cfg.Summarizer.UseSDK, "BRIEFER_SUMMARIZER_USE_SDK")
	overrideString(&cfg.Summarizer.SDKBaseURL, "BRIEFER_SUMMARIZER_SDK_BASE_URL")
	overrideString(&cfg.Summarizer.Endpoint, "BRIEFER_SUMMARIZER_ENDPOINT")
	overrideString(&cfg.Summarizer.Command, "BRIEFER_SUMMARIZER_COMMAND")
	overrideString(&cfg.Summarizer.ModelQuick, "BRIEFER_SUMMARIZER_MODEL_QUICK")
	overrideString(&cfg.Summarizer.ModelDeep, "BRIEFER_SUMMARIZER_MODEL_DEEP")
	overrideInt(&cfg.Summarizer.MaxTokensQuick, "BRIEFER_SUMMARIZER_MAX_TOKENS_QUICK")
	overrideInt(&cfg.Summarizer.MaxTokensDeep, "BRIEFER_SUMMARIZER_MAX_TOKENS_DEEP")
	overrideFloat(&cfg.Summarizer.Temperature, "BRIEFER_SUMMARIZER_TEMPERATURE")
	overrideString(&cfg.Summarizer.APIKeyEnv, "BRIEFER_SUMMARIZER_API_KEY_ENV")
	overrideString(&cfg.Summarizer.CredentialsFile, "BRIEFER_SUMMARIZER_CREDENTIALS_FILE")
	overrideInt(&cfg.Summarizer.TimeoutSeconds, "BRIEFER_SUMMARIZER_TIMEOUT_SECONDS")
	overrideString(&cfg.Journal.Path, "BRIEFER_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "BRIEFER_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "BRIEFER_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRequests, "BRIEFER_JOURNAL_MAX_REQUESTS")
	overrideBool(&cfg.Journal.VacuumOnStart, "BRIEFER_JOURNAL_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "BRIEFER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "BRIEFER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "BRIEFER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "BRIEFER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BRIEFER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BRIEFER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BRIEFER_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "BRIEFER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "BRIEFER_BUS_SUBJECT_PREFIX")
}

func expandPaths(cfg *Config) {
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Output.ErrorLog = expandPath(cfg.Output.ErrorLog)
	cfg.TTS.Piper.Python = expandPath(cfg.TTS.Piper.Python)
	cfg.TTS.Piper.Model = expandPath(cfg.TTS.Piper.Model)
	cfg.Summarizer.CredentialsFile = expandPath(cfg.Summarizer.CredentialsFile)
	cfg.Journal.Path = expandPath(cfg.Journal.Path)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return expanded
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Host.MaxMessageBytes <= 0 {
		return errors.New("host.max_message_bytes must be positive")
	}
	if cfg.Host.MinTextChars < 0 {
		return errors.New("host.min_text_chars must be >= 0")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	switch cfg.Output.Format {
	case "wav":
	case "mp3":
		if cfg.TTS.Mode != "openai" {
			return errors.New("output.format=mp3 requires tts.mode=openai")
		}
	default:
		return errors.New("output.format must be one of wav|mp3")
	}
	switch cfg.TTS.Mode {
	case "piper":
		if cfg.TTS.Piper.Command == "" && cfg.TTS.Piper.Python == "" {
			return errors.New("tts.piper.command or tts.piper.python must be set when mode=piper")
		}
		if cfg.TTS.Piper.Model == "" {
			return errors.New("tts.piper.model must be set when mode=piper")
		}
	case "exec":
		if cfg.TTS.Exec.Command == "" {
			return errors.New("tts.exec.command must be set when mode=exec")
		}
	case "openai":
		if cfg.TTS.OpenAI.Model == "" {
			return errors.New("tts.openai.model must be set when mode=openai")
		}
	case "mock":
	default:
		return errors.New("tts.mode must be one of piper|exec|openai|mock")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.TTS.LengthScale <= 0 {
		return errors.New("tts.length_scale must be positive")
	}
	if cfg.TTS.SentenceSilence < 0 || cfg.TTS.ParagraphSilence < 0 {
		return errors.New("tts silence durations must be >= 0")
	}
	if cfg.TTS.ChunkSize <= 0 {
		return errors.New("tts.chunk_size must be positive")
	}
	if cfg.TTS.TimeoutSeconds <= 0 {
		return errors.New("tts.timeout_seconds must be positive")
	}
	if cfg.Summarizer.Enabled {
		switch cfg.Summarizer.Mode {
		case "api", "ollama", "exec", "mock":
		default:
			return errors.New("summarizer.mode must be one of api|ollama|exec|mock")
		}
		if (cfg.Summarizer.Mode == "api" || cfg.Summarizer.Mode == "ollama") && cfg.Summarizer.Endpoint == "" {
			return fmt.Errorf("summarizer.endpoint must be set when mode=%s", cfg.Summarizer.Mode)
		}
		if cfg.Summarizer.Mode == "exec" && cfg.Summarizer.Command == "" {
			return errors.New("summarizer.command must be set when mode=exec")
		}
		if cfg.Summarizer.MaxTokensQuick < 0 || cfg.Summarizer.MaxTokensDeep < 0 {
			return errors.New("summarizer max tokens must be >= 0")
		}
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral":
	case "persistent":
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty when retention_mode=persistent")
		}
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
				return errors.New("bus.port must be between 1 and 65535, or -1 for any free port, when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	return nil
}
