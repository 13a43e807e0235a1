package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventClick  EventType = "click"
)

// SearchEvent describes one served search request.
type SearchEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Aggregation string    `json:"aggregation"`
	Methods     []string  `json:"methods"`
	Options     []string  `json:"options,omitempty"`
	Results     int       `json:"results"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	AIAnswered  bool      `json:"ai_answered"`
	Error       string    `json:"error,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ClickEvent records a suggestion click. Matched is false when the phrase
// is not a known suggestion.
type ClickEvent struct {
	Type      EventType `json:"type"`
	Phrase    string    `json:"phrase"`
	Matched   bool      `json:"matched"`
	Timestamp time.Time `json:"timestamp"`
}

// decodeEvent inspects the type discriminator and decodes value into the
// matching event struct.
func decodeEvent(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	switch head.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventClick:
		var e ClickEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding click event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
	}
}
