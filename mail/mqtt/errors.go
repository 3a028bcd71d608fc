package mqtt

import "errors"

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt mailer: client not connected")
	// ErrConnectionFailed is returned by Dial when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt mailer: connection failed")
	// ErrPublishFailed is returned when the broker does not acknowledge a job.
	ErrPublishFailed = errors.New("mqtt mailer: publish failed")
	// ErrInvalidQoS is returned for QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt mailer: invalid QoS level (must be 0, 1, or 2)")
)
