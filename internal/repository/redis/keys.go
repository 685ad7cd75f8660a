package redis

import "fmt"

const ns = "tixbook:v1"

func KeyEvent(eventID int64) string {
	return fmt.Sprintf("%s:event:%d", ns, eventID)
}

func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:book:%d:%s", ns, userID, idemKey)
}

func KeyRevokedToken(jti string) string {
	return fmt.Sprintf("%s:revoked:%s", ns, jti)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
