package sms

import (
	"context"
	"log"
)

const KindOTP = "otp"

type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
	Kind string `json:"kind"`
}

// Sender hands a message to the delivery provider. Send returning nil means
// the provider accepted the message, not that it reached the handset.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the process log. It stands in for a real
// provider in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("[SMS] [INFO] %s to %s: %s", msg.Kind, Mask(msg.To), msg.Body)
	return nil
}

// Mask keeps the last four digits of a phone number.
func Mask(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-4 && phone[i] >= '0' && phone[i] <= '9' {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
