// Package cloudevent provides CloudEvents 1.0 types and an HTTP sender.
package cloudevent

import (
	"fmt"
	"time"
)

// SpecVersion is the CloudEvents specification version produced.
const SpecVersion = "1.0"

// CloudEvent represents a CloudEvents 1.0 specification event
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data"`
}

// New creates a new CloudEvent with a time-based id unique per subject.
func New(eventType, source, subject string, data map[string]any) *CloudEvent {
	now := time.Now().UTC()
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              fmt.Sprintf("%s-%d", subject, now.UnixNano()),
		Time:            now,
		DataContentType: "application/json",
		Data:            data,
	}
}
