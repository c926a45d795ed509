package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AnonymityLevel string

const (
	AnonymityTransparent AnonymityLevel = "transparent"
	AnonymityAnonymous   AnonymityLevel = "anonymous"
	AnonymityElite       AnonymityLevel = "elite"
)

type HealthCheckSource string

const (
	SourceTraffic    HealthCheckSource = "traffic"
	SourceMonitor    HealthCheckSource = "monitor"
	SourceValidation HealthCheckSource = "validation"
)

// HealthCheck is a single probe or report outcome.
type HealthCheck struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ProxyID      string             `bson:"proxy_id" json:"proxy_id"`
	Provider     string             `bson:"provider,omitempty" json:"provider,omitempty"`
	Success      bool               `bson:"success" json:"success"`
	ResponseTime *float64           `bson:"response_time,omitempty" json:"response_time,omitempty"` // milliseconds
	Error        string             `bson:"error,omitempty" json:"error,omitempty"`
	Source       HealthCheckSource  `bson:"source,omitempty" json:"source,omitempty"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp"`
}

func (h *HealthCheck) Clone() *HealthCheck {
	if h == nil {
		return nil
	}
	c := *h
	c.ResponseTime = cloneFloat(h.ResponseTime)
	return &c
}

// HealthReport is what a caller hands to ReportProxyHealth.
type HealthReport struct {
	ProxyID      string
	Success      bool
	ResponseTime *float64
	Error        string
	Source       HealthCheckSource
}

// ValidationResult is the outcome of one real probe through a proxy.
type ValidationResult struct {
	IsValid        bool           `json:"is_valid"`
	ResponseTime   float64        `json:"response_time"` // milliseconds
	IPAddress      string         `json:"ip_address,omitempty"`
	AnonymityLevel AnonymityLevel `json:"anonymity_level,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// HealthTuning holds the accounting constants. The two failure thresholds differ on purpose.
type HealthTuning struct {
	SuccessRateDecay       float64 // weight kept from the prior success rate
	SuccessRateSample      float64 // weight of the new 0/100 sample
	ResponseTimeDecay      float64
	ResponseTimeSample     float64
	ValidationTarget       float64 // success blend target on validation: (rate + target) / 2
	ValidationPenalty      float64
	RuntimeDisableAfter    int
	ValidationDisableAfter int
}

func DefaultHealthTuning() HealthTuning {
	return HealthTuning{
		SuccessRateDecay:       0.9,
		SuccessRateSample:      0.1,
		ResponseTimeDecay:      0.8,
		ResponseTimeSample:     0.2,
		ValidationTarget:       95,
		ValidationPenalty:      10,
		RuntimeDisableAfter:    10,
		ValidationDisableAfter: 5,
	}
}
