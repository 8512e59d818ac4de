package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"audio-event-pipeline/internal/config"
	"audio-event-pipeline/internal/storage"
)

func main() {
	cfg := config.Load()

	audioFile := flag.String("audio", "testdata/sample.mp3", "Path to the audio file to upload")
	bucket := flag.String("bucket", cfg.Filter.InboxBucket, "Inbox bucket")
	prefix := flag.String("prefix", "uploads/", "Key prefix for the uploaded object")
	key := flag.String("key", "", "Object key (default: <prefix><uuid>-<filename>)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Upload timeout")
	flag.Parse()

	ext := strings.ToLower(filepath.Ext(*audioFile))
	if !isAudio(ext, cfg.Filter.AudioExtensions) {
		log.Printf("Warning: extension %q is not in the accepted list %v, the notification will be ignored", ext, cfg.Filter.AudioExtensions)
	}

	objectKey := *key
	if objectKey == "" {
		objectKey = *prefix + uuid.NewString() + "-" + filepath.Base(*audioFile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	start := time.Now()
	uri, err := client.UploadFile(ctx, *audioFile, *bucket, objectKey)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	log.Printf("Uploaded %s to %s in %v", *audioFile, uri, time.Since(start).Round(time.Millisecond))
}

func isAudio(ext string, accepted []string) bool {
	for _, a := range accepted {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}
