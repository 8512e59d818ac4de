package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"audio-event-pipeline/internal/models"
)

// Ignore reasons reported for rejected notifications.
const (
	ReasonNoData         = "no data"
	ReasonInvalidEvent   = "invalid event structure"
	ReasonOutputArtifact = "transcript artifacts are not ingested"
	ReasonNotAudio       = "not an audio file"
	reasonBucketTemplate = "bucket %s not monitored"
)

// Rule names used for metrics labels.
const (
	RuleNoData         = "no_data"
	RuleInvalidEvent   = "invalid_event"
	RuleBucket         = "bucket"
	RuleOutputArtifact = "output_prefix"
	RuleExtension      = "extension"
)

// Result is the outcome of normalizing one notification. When Ignored is set,
// Event may still carry whatever was parsed before the rejecting rule.
type Result struct {
	Event   models.NotificationEvent
	Shape   Shape
	Ignored bool
	Rule    string
	Reason  string
}

// Accepted reports whether the notification should trigger a run.
func (r Result) Accepted() bool {
	return !r.Ignored
}

// Validator applies the acceptance rules for inbound notifications.
type Validator struct {
	inboxBucket  string
	outputPrefix string
	extensions   []string
	now          func() time.Time
}

// New creates a Validator. Extensions are matched case-insensitively.
func New(inboxBucket, outputPrefix string, extensions []string) *Validator {
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &Validator{
		inboxBucket:  inboxBucket,
		outputPrefix: strings.ToLower(outputPrefix),
		extensions:   exts,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Normalize parses payload and applies the acceptance rules in order:
// inbox bucket, output-artifact prefix, audio extension.
func (v *Validator) Normalize(payload []byte) Result {
	ev, shape, err := Parse(payload, v.now())
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return Result{Shape: shape, Ignored: true, Rule: RuleNoData, Reason: ReasonNoData}
		}
		return Result{Shape: shape, Ignored: true, Rule: RuleInvalidEvent, Reason: ReasonInvalidEvent}
	}
	return v.Validate(ev, shape)
}

// Validate applies the acceptance rules to an already parsed event.
func (v *Validator) Validate(ev models.NotificationEvent, shape Shape) Result {
	res := Result{Event: ev, Shape: shape}

	if ev.Bucket != v.inboxBucket {
		res.Ignored, res.Rule, res.Reason = true, RuleBucket, fmt.Sprintf(reasonBucketTemplate, ev.Bucket)
		return res
	}

	key := strings.ToLower(ev.ObjectKey)
	if v.outputPrefix != "" && strings.HasPrefix(key, v.outputPrefix) {
		res.Ignored, res.Rule, res.Reason = true, RuleOutputArtifact, ReasonOutputArtifact
		return res
	}

	if !v.hasAudioExtension(key) {
		res.Ignored, res.Rule, res.Reason = true, RuleExtension, ReasonNotAudio
		return res
	}

	return res
}

func (v *Validator) hasAudioExtension(lowerKey string) bool {
	for _, ext := range v.extensions {
		if strings.HasSuffix(lowerKey, ext) {
			return true
		}
	}
	return false
}
