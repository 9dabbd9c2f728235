// Package progress defines the event stream emitted by the crawl
// engine and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageDomainStart Stage = "DOMAIN_START"
	StageDomainDone  Stage = "DOMAIN_DONE"
	StagePageFetch   Stage = "PAGE_FETCH"
	StagePageAccept  Stage = "PAGE_ACCEPT"
	StagePageReject  Stage = "PAGE_REJECT"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies a crawl run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Domain scopes domain and page events.
	Domain string
	// URL is set on page events.
	URL string
	// StatusClass groups the HTTP response for PAGE_FETCH events.
	StatusClass StatusClass
	// Reason carries the rejection reason for PAGE_REJECT events.
	Reason string
	// Quality is the page score for accept/reject events.
	Quality float64
	// Pages carries the accepted-page count for DOMAIN_DONE events.
	Pages int64
	// Dur captures fetch latency or run/domain wall time.
	Dur time.Duration
	// Note attaches low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation before an event enters the hub.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageDomainStart, StageDomainDone:
		if e.Domain == "" {
			return fmt.Errorf("%s requires domain", e.Stage)
		}
	case StagePageFetch:
		if e.Domain == "" || e.URL == "" {
			return errors.New("page fetch requires domain and url")
		}
		if e.StatusClass == "" {
			return errors.New("page fetch requires status class")
		}
	case StagePageAccept:
		if e.Domain == "" || e.URL == "" {
			return errors.New("page accept requires domain and url")
		}
	case StagePageReject:
		if e.Domain == "" || e.URL == "" {
			return errors.New("page reject requires domain and url")
		}
		if e.Reason == "" {
			return errors.New("page reject requires reason")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
