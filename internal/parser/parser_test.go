package parser

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/plot-visualizer/backend/internal/models"
)

// memorySink collects messages in order.
type memorySink struct {
	messages []models.Message
}

func (s *memorySink) AddMessage(msg *models.Message) {
	s.messages = append(s.messages, *msg)
}

// createTestFile creates a temporary file with given content
func createTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return filePath
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

const jsonlFixture = `{"topic":"/odom","receiveTime":{"sec":10,"nsec":0},"message":{"pose":{"x":1.5},"ok":true}}
{"topic":"/odom","receiveTime":{"sec":11,"nsec":500000000},"message":{"pose":{"x":2.5},"ok":false}}
this is not json
{"receiveTime":{"sec":12,"nsec":0},"message":{}}
{"topic":"/imu","receiveTime":{"sec":12,"nsec":0},"message":{"values":[1,2,3]}}
`

func TestJSONLinesParser(t *testing.T) {
	p := NewJSONLinesParser()
	path := createTestFile(t, "rec.jsonl", []byte(jsonlFixture))

	can, err := p.CanParse(path)
	if err != nil {
		t.Fatalf("CanParse failed: %v", err)
	}
	if !can {
		t.Fatal("Expected CanParse to accept JSON lines")
	}

	sink := &memorySink{}
	var lastCount int
	errs, err := p.ParseToSink(path, sink, func(n int, read, total int64) { lastCount = n })
	if err != nil {
		t.Fatalf("ParseToSink failed: %v", err)
	}

	if len(sink.messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(sink.messages))
	}
	if lastCount != 3 {
		t.Errorf("Expected final progress count 3, got %d", lastCount)
	}
	if len(errs) != 2 {
		t.Fatalf("Expected 2 parse errors, got %d: %+v", len(errs), errs)
	}
	if errs[0].Line != 3 || errs[1].Line != 4 {
		t.Errorf("Unexpected error lines: %d, %d", errs[0].Line, errs[1].Line)
	}

	second := sink.messages[1]
	if second.Topic != "/odom" || second.ReceiveTime != (models.Time{Sec: 11, Nsec: 500000000}) {
		t.Errorf("Unexpected second message: %+v", second)
	}
	pose, ok := second.Payload["pose"].(map[string]interface{})
	if !ok || pose["x"] != 2.5 {
		t.Errorf("Expected nested pose.x = 2.5, got %v", second.Payload["pose"])
	}
}

func TestJSONLinesParser_Gzip(t *testing.T) {
	p := NewJSONLinesParser()
	path := createTestFile(t, "rec.jsonl.gz", gzipBytes(t, []byte(jsonlFixture)))

	can, err := p.CanParse(path)
	if err != nil || !can {
		t.Fatalf("Expected gzipped JSON lines to be detected, got %v, %v", can, err)
	}

	sink := &memorySink{}
	if _, err := p.ParseToSink(path, sink, nil); err != nil {
		t.Fatalf("ParseToSink failed: %v", err)
	}
	if len(sink.messages) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(sink.messages))
	}
}

func TestCSVParser(t *testing.T) {
	content := "receive_time,topic,field,value\n" +
		"10.5,/odom,pose.x,1.5\n" +
		"10.5,/odom,pose.y,-2\n" +
		"10.5,/odom,moving,true\n" +
		"11,/odom,pose.x,3\n" +
		"bad,/odom,pose.x,3\n" +
		"11,/status,label,idle\n"
	path := createTestFile(t, "rec.csv", []byte(content))

	p := NewCSVParser()
	can, err := p.CanParse(path)
	if err != nil || !can {
		t.Fatalf("Expected CSV to be detected, got %v, %v", can, err)
	}

	sink := &memorySink{}
	errs, err := p.ParseToSink(path, sink, nil)
	if err != nil {
		t.Fatalf("ParseToSink failed: %v", err)
	}
	if len(errs) != 1 || errs[0].Line != 6 {
		t.Errorf("Expected one error on line 6, got %+v", errs)
	}
	if len(sink.messages) != 3 {
		t.Fatalf("Expected 3 grouped messages, got %d", len(sink.messages))
	}

	first := sink.messages[0]
	if first.ReceiveTime != (models.Time{Sec: 10, Nsec: 500000000}) {
		t.Errorf("Unexpected receive time %+v", first.ReceiveTime)
	}
	pose := first.Payload["pose"].(map[string]interface{})
	if pose["x"] != 1.5 || pose["y"] != -2.0 {
		t.Errorf("Unexpected pose %v", pose)
	}
	if first.Payload["moving"] != true {
		t.Errorf("Expected moving=true, got %v", first.Payload["moving"])
	}
	if sink.messages[2].Payload["label"] != "idle" {
		t.Errorf("Expected string value, got %v", sink.messages[2].Payload["label"])
	}
}

func TestCSVParser_RejectsOtherHeaders(t *testing.T) {
	path := createTestFile(t, "other.csv", []byte("a,b,c\n1,2,3\n"))
	can, err := NewCSVParser().CanParse(path)
	if err != nil {
		t.Fatalf("CanParse failed: %v", err)
	}
	if can {
		t.Error("Expected CanParse to reject unrelated CSV")
	}
}

func TestMsgpackParser_RoundTrip(t *testing.T) {
	messages := []models.Message{
		{Topic: "/odom", ReceiveTime: models.Time{Sec: 1}, Payload: map[string]interface{}{"x": 1.25}},
		{Topic: "/odom", ReceiveTime: models.Time{Sec: 2}, Payload: map[string]interface{}{"x": int64(7)}},
	}
	path := filepath.Join(t.TempDir(), "rec.plotrec")
	if err := WriteRecordingFile(path, messages); err != nil {
		t.Fatalf("WriteRecordingFile failed: %v", err)
	}

	p := NewMsgpackParser()
	can, err := p.CanParse(path)
	if err != nil || !can {
		t.Fatalf("Expected binary recording to be detected, got %v, %v", can, err)
	}

	sink := &memorySink{}
	errs, err := p.ParseToSink(path, sink, nil)
	if err != nil || len(errs) != 0 {
		t.Fatalf("ParseToSink failed: %v %+v", err, errs)
	}
	if len(sink.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(sink.messages))
	}
	if sink.messages[0].Payload["x"] != 1.25 {
		t.Errorf("Expected x=1.25, got %v", sink.messages[0].Payload["x"])
	}
	if n, ok := models.Float64(sink.messages[1].Payload["x"]); !ok || n != 7 {
		t.Errorf("Expected numeric x=7, got %v", sink.messages[1].Payload["x"])
	}
}

func TestRegistry_FindParser(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		file    string
		content []byte
		want    string
	}{
		{"jsonl", "a.jsonl", []byte(jsonlFixture), "jsonl"},
		{"csv", "a.csv", []byte("receive_time,topic,field,value\n1,/a,x,1\n"), "csv"},
		{"binary", "a.bin", append([]byte(nil), RecordingMagic...), "msgpack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.FindParser(createTestFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("FindParser failed: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Expected parser %s, got %s", tt.want, p.Name())
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := r.FindParser(createTestFile(t, "x.txt", []byte("hello world\n"))); err == nil {
			t.Error("Expected error for unrecognised file")
		}
	})

	t.Run("by name", func(t *testing.T) {
		p, err := r.GetParserByName("CSV")
		if err != nil || p.Name() != "csv" {
			t.Errorf("Expected csv parser, got %v, %v", p, err)
		}
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Time
		wantErr bool
	}{
		{"12", models.Time{Sec: 12}, false},
		{"12.5", models.Time{Sec: 12, Nsec: 500000000}, false},
		{"12.000000001", models.Time{Sec: 12, Nsec: 1}, false},
		{"12.1234567891", models.Time{Sec: 12, Nsec: 123456789}, false},
		{"", models.Time{}, true},
		{"abc", models.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTime(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestInferValue(t *testing.T) {
	if InferValue("TRUE") != true {
		t.Error("Expected TRUE to be a boolean")
	}
	if InferValue(" 3.5 ") != 3.5 {
		t.Error("Expected 3.5 to be a float")
	}
	if InferValue("idle") != "idle" {
		t.Error("Expected idle to stay a string")
	}
}
