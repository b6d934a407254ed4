package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Subject is the fixed alert subject line
const Subject = "Wildfire Detected! - SmokeSignal-AI"

// TimestampLayout is how detection times appear in alert bodies
const TimestampLayout = "2006-01-02 15:04:05"

// Options carries the optional parts of an alert. Nil or empty fields leave
// their section out of the message.
type Options struct {
	ConfidenceScore *float64
	Metadata        map[string]any
}

// Message is a composed alert ready for a transport
type Message struct {
	Subject string
	Body    string
}

// ComposeMessage builds the alert text for a detection at timestamp
func ComposeMessage(timestamp time.Time, opts Options) Message {
	var b strings.Builder

	b.WriteString("\U0001F525 WILDFIRE DETECTION ALERT \U0001F525\n\n")
	fmt.Fprintf(&b, "Detection Time: %s\n", timestamp.Format(TimestampLayout))
	b.WriteString("Model: SmokeSignal-AI Wildfire Detector\n\n")
	b.WriteString("⚠️ A potential wildfire has been detected in the analyzed satellite image.\n\n")

	if opts.ConfidenceScore != nil {
		fmt.Fprintf(&b, "Confidence Score: %.2f%%\n\n", *opts.ConfidenceScore*100)
	}

	if info := formatMetadata(opts.Metadata); info != "" {
		fmt.Fprintf(&b, "Image Information: %s\n\n", info)
	}

	b.WriteString("IMMEDIATE ACTION REQUIRED:\n")
	b.WriteString("1. Verify the detection with additional sources\n")
	b.WriteString("2. Contact local emergency services if confirmed\n")
	b.WriteString("3. Monitor the area for further developments\n\n")
	b.WriteString("This is an automated alert from SmokeSignal-AI.\n")
	b.WriteString("Please verify all detections before taking action.\n\n")
	b.WriteString("---\n")
	b.WriteString("SmokeSignal-AI - AI-Powered Wildfire Detection System\n")

	return Message{Subject: Subject, Body: b.String()}
}

// formatMetadata renders keys in sorted order so bodies are stable
func formatMetadata(md map[string]any) string {
	if len(md) == 0 {
		return ""
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := md[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.3f", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}
