package main

import (
	"flag"
	"log"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

func main() {
	target := flag.String("url", "http://localhost:8080/", "Notification handler URL")
	bucket := flag.String("bucket", "audio-inbox", "Bucket name in the notification")
	key := flag.String("key", "uploads/sample call.mp3", "Object key in the notification (sent percent-encoded)")
	mode := flag.String("mode", "plain", "Envelope: plain, binary or structured")
	flag.Parse()

	record := map[string]any{
		"eventName": "s3:ObjectCreated:Put",
		"eventTime": time.Now().UTC().Format(time.RFC3339),
		"s3": map[string]any{
			"bucket": map[string]any{"name": *bucket},
			"object": map[string]any{"key": url.PathEscape(*key)},
		},
	}
	payload := map[string]any{"Records": []any{record}}

	req := resty.New().SetTimeout(30 * time.Second).R()
	switch *mode {
	case "binary":
		req.SetHeader("Content-Type", "application/json").
			SetHeader("Ce-Specversion", "1.0").
			SetHeader("Ce-Id", time.Now().Format("20060102150405.000")).
			SetHeader("Ce-Source", "minio:"+*bucket).
			SetHeader("Ce-Type", "s3:ObjectCreated:Put").
			SetBody(payload)
	case "structured":
		req.SetHeader("Content-Type", "application/cloudevents+json").
			SetBody(map[string]any{
				"specversion":     "1.0",
				"id":              time.Now().Format("20060102150405.000"),
				"source":          "minio:" + *bucket,
				"type":            "s3:ObjectCreated:Put",
				"datacontenttype": "application/json",
				"data":            payload,
			})
	default:
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	resp, err := req.Post(*target)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}

	log.Printf("Status: %d", resp.StatusCode())
	log.Printf("Body: %s", resp.String())
}
