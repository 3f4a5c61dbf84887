package conversation

import "time"

// Bucket is an age band used to group conversations for display.
type Bucket int

const (
	BucketToday Bucket = iota
	BucketLast7Days
	BucketLast30Days
	BucketOlder    // 30 to 45 days
	BucketExpiring // 45 days or more; advisory only
)

// Buckets lists every band in display order.
var Buckets = []Bucket{BucketToday, BucketLast7Days, BucketLast30Days, BucketOlder, BucketExpiring}

// ExpiringAfter is the age from which a conversation is flagged as about to
// be removed by the remote store.
const ExpiringAfter = 45 * 24 * time.Hour

func (b Bucket) String() string {
	switch b {
	case BucketToday:
		return "Hoje"
	case BucketLast7Days:
		return "Últimos 7 dias"
	case BucketLast30Days:
		return "Últimos 30 dias"
	case BucketOlder:
		return "30 a 45 dias"
	case BucketExpiring:
		return "Prestes a ser removidas"
	default:
		return "?"
	}
}

// Classify returns the band for a conversation created at createdAt.
// Today means the same calendar day as now, in now's location.
func Classify(createdAt, now time.Time) Bucket {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !createdAt.Before(startOfDay) {
		return BucketToday
	}

	age := now.Sub(createdAt)
	switch {
	case age < 7*24*time.Hour:
		return BucketLast7Days
	case age < 30*24*time.Hour:
		return BucketLast30Days
	case age < ExpiringAfter:
		return BucketOlder
	default:
		return BucketExpiring
	}
}

// BucketByAge partitions conversations into age bands, preserving the input
// order within each band. It has no side effects.
func BucketByAge(convs []Conversation, now time.Time) map[Bucket][]Conversation {
	out := make(map[Bucket][]Conversation, len(Buckets))
	for _, c := range convs {
		b := Classify(c.CreatedAt, now)
		out[b] = append(out[b], c)
	}
	return out
}
