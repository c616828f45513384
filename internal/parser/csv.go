package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/plot-visualizer/backend/internal/models"
)

// csvHeader is the required column layout of CSV recordings.
var csvHeader = []string{"receive_time", "topic", "field", "value"}

// CSVParser handles long-format CSV recordings:
//
//	receive_time,topic,field,value
//	1700000000.250000000,/odom,pose.position.x,1.5
//
// Consecutive rows sharing receive_time and topic form one message. Dotted
// field names become nested objects.
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Name() string {
	return "csv"
}

func (p *CSVParser) CanParse(filePath string) (bool, error) {
	head, err := peekFile(filePath, 4096)
	if err != nil {
		return false, err
	}
	first, _, _ := strings.Cut(string(head), "\n")
	cols := strings.Split(strings.TrimSpace(strings.TrimPrefix(first, "\ufeff")), ",")
	if len(cols) != len(csvHeader) {
		return false, nil
	}
	for i, c := range cols {
		if strings.ToLower(strings.TrimSpace(c)) != csvHeader[i] {
			return false, nil
		}
	}
	return true, nil
}

func (p *CSVParser) ParseToSink(filePath string, sink MessageSink, onProgress ProgressCallback) ([]models.ParseError, error) {
	rf, err := openRecording(filePath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	r := csv.NewReader(rf)
	r.FieldsPerRecord = len(csvHeader)
	r.ReuseRecord = true

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	intern := NewStringIntern()
	errs := &errorCollector{}

	var current *models.Message
	var currentKey string
	count := 0
	flush := func() {
		if current == nil {
			return
		}
		sink.AddMessage(current)
		current = nil
		count++
		if onProgress != nil && count%progressInterval == 0 {
			onProgress(count, rf.BytesRead(), rf.size)
		}
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				errs.add(perr.Line, strings.Join(record, ","), perr.Err.Error())
				continue
			}
			return errs.errs, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := r.FieldPos(0)

		ts, err := ParseTime(record[0])
		if err != nil {
			errs.add(line, strings.Join(record, ","), err.Error())
			continue
		}
		topic := strings.TrimSpace(record[1])
		field := strings.TrimSpace(record[2])
		if topic == "" || field == "" {
			errs.add(line, strings.Join(record, ","), "missing topic or field")
			continue
		}

		key := record[0] + "\x00" + topic
		if current == nil || key != currentKey {
			flush()
			current = &models.Message{
				Topic:       intern.Intern(topic),
				ReceiveTime: ts,
				Payload:     make(map[string]interface{}),
			}
			currentKey = key
		}
		if err := setNested(current.Payload, strings.Split(field, "."), InferValue(record[3]), intern); err != nil {
			errs.add(line, strings.Join(record, ","), err.Error())
		}
	}
	flush()

	if onProgress != nil {
		onProgress(count, rf.size, rf.size)
	}
	return errs.errs, nil
}

// setNested assigns value at the dotted key path, creating maps on the way.
func setNested(m map[string]interface{}, keys []string, value interface{}, intern *StringIntern) error {
	for i, k := range keys {
		k = intern.Intern(k)
		if i == len(keys)-1 {
			m[k] = value
			return nil
		}
		next, exists := m[k]
		if !exists {
			child := make(map[string]interface{})
			m[k] = child
			m = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("field %q conflicts with a scalar value", strings.Join(keys[:i+1], "."))
		}
		m = child
	}
	return nil
}
