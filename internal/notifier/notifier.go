// Package notifier
package notifier

// Notifier delivers run events to an operator-facing side channel (e.g.,
// Telegram, SNS). Delivery is best effort: callers log failures and carry on,
// a dead side channel must never abort the run.
type Notifier interface {
	Name() string
	Send(subject string, payload any) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Name() string           { return "nop" }
func (Nop) Send(string, any) error { return nil }
