package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/plot-visualizer/backend/internal/models"
)

// JSONLinesParser reads one JSON message per line:
//
//	{"topic":"/odom","receiveTime":{"sec":1,"nsec":0},"message":{...}}
type JSONLinesParser struct{}

func NewJSONLinesParser() *JSONLinesParser {
	return &JSONLinesParser{}
}

func (p *JSONLinesParser) Name() string {
	return "jsonl"
}

func (p *JSONLinesParser) CanParse(filePath string) (bool, error) {
	const window = 64 * 1024
	head, err := peekFile(filePath, window)
	if err != nil {
		return false, err
	}
	// Drop a trailing line cut off by the peek window.
	if len(head) == window {
		if i := bytes.LastIndexByte(head, '\n'); i >= 0 {
			head = head[:i]
		}
	}

	checked, matched := 0, 0
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if checked >= 10 {
			break
		}
		checked++
		var probe struct {
			Topic string `json:"topic"`
		}
		if json.Unmarshal(line, &probe) == nil && probe.Topic != "" {
			matched++
		}
	}
	return checked > 0 && float64(matched)/float64(checked) >= 0.6, nil
}

func (p *JSONLinesParser) ParseToSink(filePath string, sink MessageSink, onProgress ProgressCallback) ([]models.ParseError, error) {
	rf, err := openRecording(filePath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	intern := NewStringIntern()
	errs := &errorCollector{}

	scanner := bufio.NewScanner(rf)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	lineNum, count := 0, 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			errs.add(lineNum, string(line), fmt.Sprintf("invalid JSON: %v", err))
			continue
		}
		if msg.Topic == "" {
			errs.add(lineNum, string(line), "missing topic")
			continue
		}
		msg.Topic = intern.Intern(msg.Topic)
		if payload, ok := intern.internKeys(msg.Payload).(map[string]interface{}); ok {
			msg.Payload = payload
		}
		sink.AddMessage(&msg)

		count++
		if onProgress != nil && count%progressInterval == 0 {
			onProgress(count, rf.BytesRead(), rf.size)
		}
	}
	if err := scanner.Err(); err != nil {
		return errs.errs, fmt.Errorf("reading line %d: %w", lineNum+1, err)
	}
	if onProgress != nil {
		onProgress(count, rf.size, rf.size)
	}
	return errs.errs, nil
}
