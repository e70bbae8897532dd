// Package eventbus announces committed exclusion changes on NATS so
// dashboards and report caches can refresh.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectApplied  = "exclusions.applied"
	SubjectManual   = "exclusions.manual"
	SubjectReleased = "exclusions.released"
)

// ExclusionEvent is published after the ledger transaction commits
type ExclusionEvent struct {
	CallID         int64     `json:"call_id"`
	ResponseNumber string    `json:"response_number,omitempty"`
	ParishID       int64     `json:"parish_id,omitempty"`
	Action         string    `json:"action"` // exclude, unexclude
	ExclusionType  string    `json:"exclusion_type"`
	Strategy       string    `json:"strategy,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(subject string, event ExclusionEvent) error
	Close()
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(natsURL string) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("exclusion-engine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Exclusion engine connected to NATS at %s", natsURL)

	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(subject string, event ExclusionEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Printf("Exclusion engine disconnected from NATS")
	}
}

func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Encode serialises an event, stamping it when the caller did not
func Encode(event ExclusionEvent) ([]byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return json.Marshal(event)
}

// NoopPublisher is used when no NATS URL is configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, ExclusionEvent) error { return nil }

func (NoopPublisher) Close() {}

// New connects to NATS, or returns a NoopPublisher for an empty URL
func New(natsURL string) (Publisher, error) {
	if natsURL == "" {
		log.Println("NATS_URL not set, exclusion events will not be published")
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(natsURL)
}
