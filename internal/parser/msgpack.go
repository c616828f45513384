package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// RecordingMagic identifies a binary recording: the magic followed by a
// stream of MessagePack-encoded messages.
var RecordingMagic = []byte("PLOTREC1")

// MsgpackParser reads binary recordings written by WriteRecording.
type MsgpackParser struct{}

func NewMsgpackParser() *MsgpackParser {
	return &MsgpackParser{}
}

func (p *MsgpackParser) Name() string {
	return "msgpack"
}

func (p *MsgpackParser) CanParse(filePath string) (bool, error) {
	head, err := peekFile(filePath, len(RecordingMagic))
	if err != nil {
		return false, err
	}
	return bytes.Equal(head, RecordingMagic), nil
}

func (p *MsgpackParser) ParseToSink(filePath string, sink MessageSink, onProgress ProgressCallback) ([]models.ParseError, error) {
	rf, err := openRecording(filePath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	magic := make([]byte, len(RecordingMagic))
	if _, err := io.ReadFull(rf, magic); err != nil || !bytes.Equal(magic, RecordingMagic) {
		return nil, fmt.Errorf("not a binary recording: bad magic")
	}

	intern := NewStringIntern()
	errs := &errorCollector{}
	dec := msgpack.NewDecoder(rf)

	count := 0
	for {
		var msg models.Message
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// The stream cannot be resynchronised after a corrupt record.
			errs.add(count+1, "", fmt.Sprintf("decoding record: %v", err))
			break
		}
		if msg.Topic == "" {
			errs.add(count+1, "", "missing topic")
			continue
		}
		msg.Topic = intern.Intern(msg.Topic)
		sink.AddMessage(&msg)

		count++
		if onProgress != nil && count%progressInterval == 0 {
			onProgress(count, rf.BytesRead(), rf.size)
		}
	}

	if onProgress != nil {
		onProgress(count, rf.size, rf.size)
	}
	return errs.errs, nil
}

// WriteRecording encodes messages in the binary recording format.
func WriteRecording(w io.Writer, messages []models.Message) error {
	if _, err := w.Write(RecordingMagic); err != nil {
		return err
	}
	enc := msgpack.NewEncoder(w)
	for i := range messages {
		if err := enc.Encode(&messages[i]); err != nil {
			return fmt.Errorf("encoding message %d: %w", i, err)
		}
	}
	return nil
}

// WriteRecordingFile writes messages to a new binary recording at path.
func WriteRecordingFile(path string, messages []models.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRecording(f, messages); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
