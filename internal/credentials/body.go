package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

// Body is the request payload as seen by the extractor: either a decoded
// JSON object or raw bytes.
type Body struct {
	Fields map[string]any
	Raw    []byte
}

// ReadBody buffers r.Body. JSON-typed payloads that decode to an object
// become Fields; everything else is kept as Raw. A nil Body means the
// request had no payload.
func ReadBody(r *http.Request, limit int64) (*Body, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, nil
	}

	if isJSONContent(r.Header.Get("Content-Type")) {
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err == nil && fields != nil {
			return &Body{Fields: fields}, nil
		}
	}
	return &Body{Raw: data}, nil
}

func isJSONContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/plain"
}

// Bytes serializes the body for downstream handlers.
func (b *Body) Bytes() ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	if b.Fields != nil {
		return json.Marshal(b.Fields)
	}
	return b.Raw, nil
}

// Restore replaces r.Body with the (possibly rewritten) payload.
func (b *Body) Restore(r *http.Request) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))
	r.Header.Set("Content-Length", strconv.Itoa(len(data)))
	return nil
}

// take removes key from the fields and returns its value rendered as a
// string. Absent, null and empty values report false.
func (b *Body) take(key string) (string, bool) {
	v, ok := b.Fields[key]
	if !ok {
		return "", false
	}
	delete(b.Fields, key)
	s := stringify(v)
	return s, s != ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return ""
		}
		return "true"
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
