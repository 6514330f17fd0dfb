package monitor

import (
	"fmt"
	"log"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// AlertType classifies what the monitor observed.
type AlertType string

const (
	PriceAnomaly      AlertType = "PRICE_ANOMALY"
	VolumeAnomaly     AlertType = "VOLUME_ANOMALY"
	VolatilityAnomaly AlertType = "VOLATILITY_ANOMALY"
	RiskAlert         AlertType = "RISK_ALERT"
	SystemAlert       AlertType = "SYSTEM_ALERT"
)

// Alert is a single monitor finding. Subject is the throttle key: a symbol
// for market/risk alerts, a component name for system alerts.
type Alert struct {
	ID       string    `json:"id"`
	Type     AlertType `json:"type"`
	Severity string    `json:"severity"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	Instance string    `json:"instance"`
	Time     time.Time `json:"time"`
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s/%s] %s %s: %s", a.Type, a.Severity, a.Subject, a.Time.Format(time.RFC3339), a.Message)
}

// severityFor maps alert types to a severity label. Risk breaches need an
// operator to act; everything else is informational.
func severityFor(typ AlertType) string {
	if typ == RiskAlert {
		return "critical"
	}
	return "warning"
}

// Subscriber receives alerts. Delivery errors are logged by the monitor and
// never stop delivery to other subscribers.
type Subscriber interface {
	Notify(Alert) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Alert) error

func (f SubscriberFunc) Notify(a Alert) error { return f(a) }

// LogSubscriber writes alerts to the process log.
type LogSubscriber struct{}

func (LogSubscriber) Notify(a Alert) error {
	log.Printf("alert: %s", a)
	return nil
}

func newAlert(typ AlertType, subject, message string, value float64, instance string, at time.Time) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Type:     typ,
		Severity: severityFor(typ),
		Subject:  subject,
		Message:  message,
		Value:    value,
		Instance: instance,
		Time:     at,
	}
}

// instanceID tags alerts with a stable host identifier so alerts from
// different deployments can be told apart downstream.
func instanceID() string {
	id, err := machineid.ID()
	if err != nil {
		log.Printf("monitor: machine id unavailable: %v", err)
		return "unknown"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
