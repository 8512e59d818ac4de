// Package schema recognizes storage notification payloads and applies the
// acceptance rules that decide whether a notification launches a pipeline run.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"audio-event-pipeline/internal/models"
)

// Validation errors returned by Parse.
var (
	ErrNoData            = errors.New("no data")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnrecognizedShape = errors.New("unrecognized notification shape")
	ErrMissingBucket     = errors.New("missing bucket name")
	ErrMissingObjectKey  = errors.New("missing object key")
)

// Shape identifies which notification layout a payload used.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeRecords is the S3-style {"Records":[...]} wrapper.
	ShapeRecords
	// ShapeFlat carries bucket and object at the top level.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeRecords:
		return "records"
	case ShapeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

type bucketRef struct {
	Name string `json:"name"`
}

type objectRef struct {
	Key string `json:"key"`
}

type s3Entity struct {
	Bucket *bucketRef `json:"bucket"`
	Object *objectRef `json:"object"`
}

type record struct {
	S3        *s3Entity `json:"s3"`
	EventTime string    `json:"eventTime"`
}

// envelope holds the union of both shapes; exactly one side is populated.
type envelope struct {
	Records   []record   `json:"Records"`
	Bucket    *bucketRef `json:"bucket"`
	Object    *objectRef `json:"object"`
	EventTime string     `json:"eventTime"`
}

// Parse decodes a notification payload into a NotificationEvent. The object key
// is percent-decoded once. now supplies the event time when the payload has none.
func Parse(payload []byte, now time.Time) (models.NotificationEvent, Shape, error) {
	var ev models.NotificationEvent

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return ev, ShapeUnknown, ErrNoData
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return ev, ShapeUnknown, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var (
		shape     Shape
		bucket    *bucketRef
		object    *objectRef
		eventTime string
	)
	switch {
	case len(env.Records) > 0:
		shape = ShapeRecords
		rec := env.Records[0]
		if rec.S3 != nil {
			bucket, object = rec.S3.Bucket, rec.S3.Object
		}
		eventTime = rec.EventTime
	case env.Bucket != nil || env.Object != nil:
		shape = ShapeFlat
		bucket, object = env.Bucket, env.Object
		eventTime = env.EventTime
	default:
		return ev, ShapeUnknown, ErrUnrecognizedShape
	}

	if bucket == nil || strings.TrimSpace(bucket.Name) == "" {
		return ev, shape, ErrMissingBucket
	}
	if object == nil || object.Key == "" {
		return ev, shape, ErrMissingObjectKey
	}

	key := unescapeKey(object.Key)
	if key == "" {
		return ev, shape, ErrMissingObjectKey
	}

	ev.Bucket = bucket.Name
	ev.ObjectKey = key
	ev.EventTime = parseEventTime(eventTime, now)
	return ev, shape, nil
}

func parseEventTime(value string, now time.Time) time.Time {
	if value == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return now
}

// unescapeKey decodes each valid %XX escape in key once. Malformed escapes
// stay literal and '+' is not treated as a space.
func unescapeKey(key string) string {
	if !strings.Contains(key, "%") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '%' && i+2 < len(key) && isHex(key[i+1]) && isHex(key[i+2]) {
			b.WriteByte(unhex(key[i+1])<<4 | unhex(key[i+2]))
			i += 2
			continue
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
