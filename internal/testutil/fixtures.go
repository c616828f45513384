package testutil

import (
	"bytes"
	"encoding/json"

	"github.com/plot-visualizer/backend/internal/models"
)

// OdomMessages returns n messages on topic, one per second from start.
// Message i carries pose.x = i, pose.y = 2i, a header stamp 100ms before
// the receive time and status = i%2.
func OdomMessages(topic string, n int, start models.Time) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		recv := models.Time{Sec: start.Sec + int64(i), Nsec: start.Nsec}
		stamp := models.Time{Sec: recv.Sec - 1, Nsec: 900000000}
		msgs[i] = models.Message{
			Topic:       topic,
			ReceiveTime: recv,
			Payload: map[string]interface{}{
				"header": map[string]interface{}{
					"stamp": map[string]interface{}{"sec": float64(stamp.Sec), "nsec": float64(stamp.Nsec)},
				},
				"pose":   map[string]interface{}{"x": float64(i), "y": float64(2 * i)},
				"status": float64(i % 2),
			},
		}
	}
	return msgs
}

// JSONLines encodes msgs in the JSON-lines recording format.
func JSONLines(msgs []models.Message) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		// Encoding plain maps and numbers cannot fail.
		_ = enc.Encode(m)
	}
	return buf.Bytes()
}
