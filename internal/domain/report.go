package domain

import "time"

// SubscriberStats aggregates per-subscriber outcomes within one run.
type SubscriberStats struct {
	Matches  int `json:"coincidencias"`
	Sends    int `json:"envios"`
	Failures int `json:"fallos"`
}

// RunReport is the aggregate result of one engine invocation. Field keys
// follow the names the operational consumers already read.
type RunReport struct {
	Day        string    `json:"dia"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalReceived int `json:"total_received"`
	TotalFiltered int `json:"total_filtered"`
	TotalNew      int `json:"total_new"`
	AlreadySeen   int `json:"already_seen"`

	Matches  int `json:"coincidencias"`
	Sends    int `json:"envios"`
	Failures int `json:"fallos"`

	PerSubscriber map[string]*SubscriberStats `json:"por_suscriptor"`

	// ItemsWithoutSend lists identifiers of new items that ended the run with
	// zero successful sends; the operational follow-up signal.
	ItemsWithoutSend []string `json:"procesos_sin_envio"`

	// Errors collects non-fatal per-item and per-subscriber failures.
	Errors []string `json:"errores,omitempty"`

	DatasetCacheHit bool `json:"dataset_cache_hit"`
}

// NewRunReport initializes an empty report for the given calendar day.
func NewRunReport(day string) *RunReport {
	return &RunReport{
		Day:           day,
		StartedAt:     time.Now(),
		PerSubscriber: map[string]*SubscriberStats{},
	}
}

// Stats returns the per-subscriber bucket, creating it on first use.
func (r *RunReport) Stats(subscriberID string) *SubscriberStats {
	s, ok := r.PerSubscriber[subscriberID]
	if !ok {
		s = &SubscriberStats{}
		r.PerSubscriber[subscriberID] = s
	}
	return s
}

// AddError records a non-fatal error without aborting the run.
func (r *RunReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
