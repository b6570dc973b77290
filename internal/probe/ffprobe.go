package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type ffprobeResult struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	SampleRate       string `json:"sample_rate"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	BitRate          string `json:"bit_rate"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// inspect runs ffprobe against a single file and returns the parsed JSON
// document. The caller bounds the run with its context.
func inspect(ctx context.Context, binary, path string) (*ffprobeResult, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--",
		path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// metricsFromResult reduces an ffprobe document to the readout the grouping
// engine compares. The first audio stream wins; video streams (embedded
// covers) are ignored.
func metricsFromResult(result *ffprobeResult) (Metrics, error) {
	var audio *ffprobeStream
	for i := range result.Streams {
		if result.Streams[i].CodecType == "audio" {
			audio = &result.Streams[i]
			break
		}
	}
	if audio == nil {
		return Metrics{}, fmt.Errorf("no audio stream")
	}

	metrics := Metrics{Codec: strings.ToLower(audio.CodecName)}
	metrics.SampleRateHz = parseInt(audio.SampleRate)
	metrics.BitDepth = audio.BitsPerSample
	if depth := parseInt(audio.BitsPerRawSample); depth > 0 {
		metrics.BitDepth = depth
	}

	bitrate := parseInt(audio.BitRate)
	if bitrate == 0 {
		bitrate = parseInt(result.Format.BitRate)
	}
	metrics.BitrateKbps = bitrate / 1000
	metrics.DurationSec = parseFloat(result.Format.Duration)
	return metrics, nil
}

func parseInt(value string) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return parsed
}

func parseFloat(value string) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return parsed
}
