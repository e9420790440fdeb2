package enum

import "time"

// ConnectionQuality is derived from measured heartbeat round-trip latency.
type ConnectionQuality uint8

const (
	QualityOffline ConnectionQuality = iota
	QualityPoor
	QualityGood
	QualityExcellent
)

const (
	excellentLatency = 100 * time.Millisecond
	goodLatency      = 300 * time.Millisecond
)

// QualityForLatency maps a round-trip sample to a quality tier.
func QualityForLatency(rtt time.Duration) ConnectionQuality {
	switch {
	case rtt < excellentLatency:
		return QualityExcellent
	case rtt < goodLatency:
		return QualityGood
	default:
		return QualityPoor
	}
}

func (q ConnectionQuality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityPoor:
		return "poor"
	case QualityOffline:
		return "offline"
	default:
		return "unknown"
	}
}
