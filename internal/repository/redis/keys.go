package redis

import "fmt"

const ns = "reserva:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventAvailability(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability", ns, eventID)
}

func KeyIdemReserve(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:reserve:%d:%s", ns, userID, idemKey)
}

func ChannelAvailabilityChanged() string {
	return ns + ":availability:changed"
}
