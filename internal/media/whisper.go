package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
)

// whisperOutput is the JSON shape shared by the whisper CLI and the
// verbose_json transcription API.
type whisperOutput struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w whisperOutput) transcript() Transcript {
	segments := make([]models.Segment, 0, len(w.Segments))
	texts := make([]string, 0, len(w.Segments))
	for _, s := range w.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Timestamp: models.FormatTimestamp(int(s.Start)),
			Text:      text,
		})
		texts = append(texts, text)
	}

	full := strings.TrimSpace(w.Text)
	if full == "" {
		full = strings.Join(texts, " ")
	}
	return Transcript{Segments: segments, FullText: full}
}

// WhisperCLI transcribes with the openai-whisper command line tool.
type WhisperCLI struct {
	Bin     string
	Model   string
	Metrics *metrics.Collector

	run runFunc
}

// NewWhisperCLI creates a CLI transcriber. The model defaults to "base".
func NewWhisperCLI(bin, model string, m *metrics.Collector) *WhisperCLI {
	if bin == "" {
		bin = "whisper"
	}
	if model == "" {
		model = "base"
	}
	return &WhisperCLI{Bin: bin, Model: model, Metrics: m, run: runCommand}
}

// Transcribe writes <audio>.json next to the audio file and parses it.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	outDir := filepath.Dir(audioPath)
	start := time.Now()

	out, err := w.run(ctx, w.Bin, audioPath,
		"--model", w.Model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	)
	if err != nil {
		return Transcript{}, fmt.Errorf("run whisper: %w: %s", err, tail(out, 400))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}

	var parsed whisperOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}
	w.Metrics.RecordTiming(metrics.OpTranscribe, time.Since(start))
	return parsed.transcript(), nil
}

// WhisperAPI transcribes through an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type WhisperAPI struct {
	URL     string
	APIKey  string
	Model   string
	Client  *http.Client
	Metrics *metrics.Collector
}

// Transcribe uploads the audio file and requests verbose_json segments.
func (w *WhisperAPI) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	if w.APIKey == "" {
		return Transcript{}, fmt.Errorf("transcription API key not set: set LECTURELENS_TRANSCRIBE_API_KEY or OPENAI_API_KEY")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", w.Model); err != nil {
		return Transcript{}, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return Transcript{}, err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Transcript{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return Transcript{}, err
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.APIKey)

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("call transcription API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("transcription API rejected request", "status", resp.StatusCode)
		return Transcript{}, fmt.Errorf("transcription API error (HTTP %d): %s", resp.StatusCode, tail(string(respBody), 300))
	}

	var parsed whisperOutput
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Transcript{}, fmt.Errorf("parse transcription response: %w", err)
	}
	w.Metrics.RecordTiming(metrics.OpTranscribe, time.Since(start))
	return parsed.transcript(), nil
}
