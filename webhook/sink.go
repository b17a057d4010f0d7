package webhook

import (
	"context"
	"encoding/json"
	"time"
)

// Sink adapts Deliver into a port.ExportSink: EXPORT_DATA's output is
// wrapped as a webhook Event of type "scan.exported" and POSTed to URL,
// HMAC-signed the same way DeliverAsync's retry loop signs everything
// else this package sends.
type Sink struct {
	URL    string
	Secret string
}

// Write implements port.ExportSink by delivering data as the Data field of
// a "scan.exported" webhook event. JobID carries filename since the
// receiving endpoint has no other way to tell exports apart.
func (s Sink) Write(ctx context.Context, filename, mime string, data []byte) error {
	event := &Event{
		Type:      "scan.exported",
		JobID:     filename,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(data),
	}
	return Deliver(ctx, s.URL, s.Secret, event)
}
