package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamQuiet   StreamMode = "quiet"
)

// StreamWriter handles token output. Instant mode prints each segment as it
// arrives; quiet mode drives a progress bar instead and prints the full text
// once at the end.
type StreamWriter struct {
	mode   StreamMode
	output io.Writer
	buffer *bufio.Writer
	bar    *progressbar.ProgressBar

	accumulator strings.Builder
}

// NewStreamWriter creates a streaming output handler. maxTokens sizes the
// quiet-mode progress bar.
func NewStreamWriter(mode StreamMode, maxTokens int) *StreamWriter {
	w := &StreamWriter{
		mode:   mode,
		output: os.Stdout,
		buffer: bufio.NewWriterSize(os.Stdout, 4096),
	}
	if mode == StreamQuiet {
		w.bar = progressbar.NewOptions(maxTokens,
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("tok"),
			progressbar.OptionClearOnFinish(),
		)
	}
	return w
}

// Write handles one decoded text segment.
func (w *StreamWriter) Write(segment string) {
	w.accumulator.WriteString(segment)
	switch w.mode {
	case StreamQuiet:
		_ = w.bar.Add(1)
	default:
		_, _ = w.buffer.WriteString(segment)
		_ = w.buffer.Flush()
	}
}

// Flush ensures all buffered content is written and returns the full text.
func (w *StreamWriter) Flush() string {
	text := w.accumulator.String()
	if w.mode == StreamQuiet {
		_ = w.bar.Finish()
		fmt.Fprint(w.output, text)
	} else {
		_ = w.buffer.Flush()
	}
	return text
}
