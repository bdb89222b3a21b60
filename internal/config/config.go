// Package config loads lecturelens settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted for the text and analysis backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// Transcription backends.
const (
	TranscriberWhisperCLI = "whisper"
	TranscriberWhisperAPI = "openai"
)

// Config holds all configuration values.
type Config struct {
	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Media workspace
	WorkDir   string
	KeepMedia bool

	// External binaries
	YTDLPBin   string
	FFmpegBin  string
	WhisperBin string

	// Transcription
	TranscribeProvider string
	WhisperModel       string
	TranscribeURL      string
	TranscribeModel    string
	TranscribeAPIKey   string

	// Frame sampling
	FrameInterval time.Duration

	// Text generation backend (summary, chapters, Q&A, chat, flashcards)
	LLMProvider string
	LLMModel    string

	// Deep analysis backend
	AnalysisProvider string
	AnalysisModel    string

	// Provider credentials and endpoints
	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GeminiBaseURL   string
	AWSRegion       string

	// Per-collaborator timeouts
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	VisualsTimeout    time.Duration
	ChatTimeout       time.Duration
	FlashcardTimeout  time.Duration
	AnalysisTimeout   time.Duration

	// Leading-character budgets for prompts built from the transcript
	SummaryPromptChars  int
	ChaptersPromptChars int
	ChatPromptChars     int

	// Concurrency
	Workers         int
	QueueSize       int
	TextConcurrency int
	PipelineTimeout time.Duration
	TaskTTL         time.Duration
	TaskSweepPeriod time.Duration

	// Prompt template overrides (YAML), reloaded on change when PromptsWatch is set
	PromptsFile  string
	PromptsWatch bool
}

// Load reads configuration from environment variables.
// Defaults: llama3 on a local Ollama for text, Gemini for deep analysis,
// whisper "base" for transcription.
func Load() Config {
	return Config{
		ServerPort: getEnv("LECTURELENS_SERVER_PORT", "8000"),

		LogFile:  getEnv("LECTURELENS_LOG_FILE", "/tmp/lecturelens.log"),
		LogLevel: parseLogLevel(getEnv("LECTURELENS_LOG_LEVEL", "INFO")),

		WorkDir:   getEnv("LECTURELENS_WORK_DIR", "temp"),
		KeepMedia: getEnvBool("LECTURELENS_KEEP_MEDIA", true),

		YTDLPBin:   getEnv("LECTURELENS_YTDLP_BIN", "yt-dlp"),
		FFmpegBin:  getEnv("LECTURELENS_FFMPEG_BIN", "ffmpeg"),
		WhisperBin: getEnv("LECTURELENS_WHISPER_BIN", "whisper"),

		TranscribeProvider: strings.ToLower(getEnv("LECTURELENS_TRANSCRIBER", TranscriberWhisperCLI)),
		WhisperModel:       getEnv("LECTURELENS_WHISPER_MODEL", "base"),
		TranscribeURL:      getEnv("LECTURELENS_TRANSCRIBE_URL", "https://api.openai.com/v1/audio/transcriptions"),
		TranscribeModel:    getEnv("LECTURELENS_TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeAPIKey:   getEnv("LECTURELENS_TRANSCRIBE_API_KEY", os.Getenv("OPENAI_API_KEY")),

		FrameInterval: getEnvDuration("LECTURELENS_FRAME_INTERVAL", 30*time.Second),

		LLMProvider: strings.ToLower(getEnv("LECTURELENS_LLM_PROVIDER", ProviderOllama)),
		LLMModel:    getEnv("LECTURELENS_LLM_MODEL", "llama3"),

		AnalysisProvider: strings.ToLower(getEnv("LECTURELENS_ANALYSIS_PROVIDER", ProviderGemini)),
		AnalysisModel:    getEnv("LECTURELENS_ANALYSIS_MODEL", "gemini-pro"),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		FetchTimeout:      getEnvDuration("LECTURELENS_FETCH_TIMEOUT", 30*time.Minute),
		TranscribeTimeout: getEnvDuration("LECTURELENS_TRANSCRIBE_TIMEOUT", time.Hour),
		GenerateTimeout:   getEnvDuration("LECTURELENS_GENERATE_TIMEOUT", 300*time.Second),
		VisualsTimeout:    getEnvDuration("LECTURELENS_VISUALS_TIMEOUT", 30*time.Minute),
		ChatTimeout:       getEnvDuration("LECTURELENS_CHAT_TIMEOUT", 120*time.Second),
		FlashcardTimeout:  getEnvDuration("LECTURELENS_FLASHCARD_TIMEOUT", 180*time.Second),
		AnalysisTimeout:   getEnvDuration("LECTURELENS_ANALYSIS_TIMEOUT", 120*time.Second),

		SummaryPromptChars:  getEnvInt("LECTURELENS_SUMMARY_PROMPT_CHARS", 4000),
		ChaptersPromptChars: getEnvInt("LECTURELENS_CHAPTERS_PROMPT_CHARS", 0),
		ChatPromptChars:     getEnvInt("LECTURELENS_CHAT_PROMPT_CHARS", 8000),

		Workers:         clampInt(getEnvInt("LECTURELENS_WORKERS", 2), 1, 64),
		QueueSize:       clampInt(getEnvInt("LECTURELENS_QUEUE_SIZE", 64), 1, 4096),
		TextConcurrency: clampInt(getEnvInt("LECTURELENS_TEXT_CONCURRENCY", 1), 1, 3),
		PipelineTimeout: getEnvDuration("LECTURELENS_PIPELINE_TIMEOUT", 0),
		TaskTTL:         getEnvDuration("LECTURELENS_TASK_TTL", 0),
		TaskSweepPeriod: getEnvDuration("LECTURELENS_TASK_SWEEP_PERIOD", 10*time.Minute),

		PromptsFile:  getEnv("LECTURELENS_PROMPTS_FILE", ""),
		PromptsWatch: getEnvBool("LECTURELENS_PROMPTS_WATCH", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvDuration accepts Go durations ("90s", "5m") or bare seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
