// Package parser decodes recording files into topic messages.
package parser

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/plot-visualizer/backend/internal/models"
)

// ProgressCallback is called periodically during parsing to report progress.
type ProgressCallback func(messagesProcessed int, bytesProcessed int64, totalBytes int64)

// MessageSink receives decoded messages. DuckStore implements it.
type MessageSink interface {
	AddMessage(msg *models.Message)
}

// Parser defines the interface for recording parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// ParseToSink streams every message of the file into sink.
	// Malformed records are reported as parse errors and skipped.
	ParseToSink(filePath string, sink MessageSink, onProgress ProgressCallback) ([]models.ParseError, error)
}

// progressInterval is how many messages pass between progress callbacks.
const progressInterval = 10000

// maxParseErrors bounds the errors collected per file.
const maxParseErrors = 1000

var gzipMagic = []byte{0x1f, 0x8b}

// countingReader tracks bytes consumed from the underlying file.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// recordingFile is an open recording, transparently gunzipped.
type recordingFile struct {
	io.Reader
	file    *os.File
	gz      *gzip.Reader
	counter *countingReader
	size    int64
}

// openRecording opens filePath and detects gzip by its magic bytes.
func openRecording(filePath string) (*recordingFile, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	counter := &countingReader{r: f}
	br := bufio.NewReaderSize(counter, 256*1024)
	rf := &recordingFile{Reader: br, file: f, counter: counter, size: info.Size()}

	head, _ := br.Peek(2)
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		rf.gz = gz
		rf.Reader = bufio.NewReaderSize(gz, 256*1024)
	}
	return rf, nil
}

// BytesRead returns the compressed bytes consumed so far.
func (rf *recordingFile) BytesRead() int64 {
	return rf.counter.n
}

func (rf *recordingFile) Close() error {
	if rf.gz != nil {
		rf.gz.Close()
	}
	return rf.file.Close()
}

// peekFile returns up to n decompressed bytes from the start of the file.
func peekFile(filePath string, n int) ([]byte, error) {
	rf, err := openRecording(filePath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(rf, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// trimExt strips a trailing ".gz" so extension checks see the inner format.
func trimExt(filePath string) string {
	return strings.TrimSuffix(strings.ToLower(filePath), ".gz")
}

// ParseTime parses "sec.nsec" or a plain decimal seconds value.
func ParseTime(s string) (models.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Time{}, fmt.Errorf("empty timestamp")
	}
	secPart, fracPart, hasFrac := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return models.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if !hasFrac || fracPart == "" {
		return models.Time{Sec: sec}, nil
	}
	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}
	nsec, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil || nsec < 0 {
		return models.Time{}, fmt.Errorf("invalid timestamp fraction %q", s)
	}
	for i := len(fracPart); i < 9; i++ {
		nsec *= 10
	}
	if strings.HasPrefix(secPart, "-") {
		nsec = -nsec
	}
	return models.Time{Sec: sec, Nsec: nsec}, nil
}

// InferValue converts a raw text cell into a bool, float64 or string.
func InferValue(raw string) interface{} {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "":
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// errorCollector accumulates parse errors up to maxParseErrors.
type errorCollector struct {
	errs []models.ParseError
}

func (c *errorCollector) add(line int, content, reason string) {
	if len(c.errs) >= maxParseErrors {
		return
	}
	if len(content) > 200 {
		content = content[:200]
	}
	c.errs = append(c.errs, models.ParseError{Line: line, Content: content, Reason: reason})
}
