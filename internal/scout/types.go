// Package scout defines core types shared across subsystems.
package scout

import (
	"time"
)

// JobStatus represents the lifecycle state of a search job.
type JobStatus string

// Job status values persisted in the job store. A job is created running and
// reaches exactly one of the terminal states.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Event is one normalized tech-event listing from any platform.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	City         string    `json:"city"`
	Venue        string    `json:"venue,omitempty"`
	EventType    string    `json:"event_type,omitempty"`
	PriceTier    string    `json:"price_tier,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	SourceURL    string    `json:"source_url"`
	Platform     string    `json:"platform"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchFilters captures the filter parameters of a search or listing request.
// Query is empty on the plain listing path.
type SearchFilters struct {
	Query      string   `json:"query,omitempty"`
	City       string   `json:"city,omitempty"`
	EventType  string   `json:"event_type,omitempty"`
	PriceTier  string   `json:"price_tier,omitempty"`
	DateBucket string   `json:"date_bucket,omitempty"`
	DateFrom   *time.Time
	DateTo     *time.Time
	Platforms  []string `json:"platforms,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// JobRecord is the durable row for one asynchronous scraping task.
type JobRecord struct {
	ID            string     `json:"id"`
	Query         string     `json:"query"`
	City          string     `json:"city"`
	Platforms     []string   `json:"platforms"`
	Status        JobStatus  `json:"status"`
	EventsScraped int        `json:"events_scraped"`
	ErrorText     string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// QueueMessage is the immutable envelope published once per job.
type QueueMessage struct {
	JobID     string   `json:"job_id"`
	Query     string   `json:"query"`
	City      string   `json:"city"`
	Platforms []string `json:"platforms"`
}

// Delivery is one at-least-once delivery of a QueueMessage. Ack confirms
// processing; Nack requests redelivery, which the queue retries with backoff
// until the attempt cap is reached.
type Delivery struct {
	Message QueueMessage
	Attempt int

	AckFunc  func()
	NackFunc func()
}

// Ack confirms the delivery.
func (d Delivery) Ack() {
	if d.AckFunc != nil {
		d.AckFunc()
	}
}

// Nack requests redelivery.
func (d Delivery) Nack() {
	if d.NackFunc != nil {
		d.NackFunc()
	}
}

// Pagination describes one page of a listing response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}
