package audit

import "time"

// EventType identifies the kind of operational event being recorded.
type EventType string

const (
	// Ingest events
	EventIngestAccepted EventType = "ingest.accepted"
	EventIngestRejected EventType = "ingest.rejected"

	// Alert events
	EventAlertRaised EventType = "alert.raised"

	// WebSocket events
	EventClientEvicted EventType = "ws.client_evicted"

	// Auth events
	EventAuthFailure EventType = "auth.failure"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventConfigReload   EventType = "config.reload"
)

// Result represents the outcome of an audited operation
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Event represents a single entry in the operational trail
type Event struct {
	// Core fields
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Result    Result    `json:"result"`

	// Actor information
	User     string `json:"user,omitempty"`
	SourceIP string `json:"source_ip,omitempty"`

	// Retail context
	Store int `json:"store,omitempty"`
	Dept  int `json:"dept,omitempty"`

	// Scoring context
	RiskLevel string  `json:"risk_level,omitempty"`
	RiskScore float64 `json:"risk_score,omitempty"`

	// Event details
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`
}

// NewEvent creates a new event stamped with the current UTC time
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultSuccess,
		Metadata:  make(map[string]interface{}),
	}
}

// WithUser sets the user who triggered the event
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithSourceIP sets the originating client address
func (e *Event) WithSourceIP(ip string) *Event {
	e.SourceIP = ip
	return e
}

// WithStore sets the store and department the event concerns
func (e *Event) WithStore(store, dept int) *Event {
	e.Store = store
	e.Dept = dept
	return e
}

// WithRisk sets the risk scoring context
func (e *Event) WithRisk(level string, score float64) *Event {
	e.RiskLevel = level
	e.RiskScore = score
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
