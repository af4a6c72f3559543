package cloudsync

import (
	"encoding/json"
	"math"
	"strconv"
)

// PublicZone is the world-readable zone that maps join codes to shares.
const PublicZone = "_public"

const (
	TypeShareCode   = "LBShareCode"
	TypeSharedList  = "LBSharedList"
	TypeListItem    = "LBListItem"
	TypeChatMessage = "LBChatMessage"

	RootRecordID = "list"

	FieldLocator   = "locator"
	FieldCode      = "code"
	FieldCreatedAt = "createdAt"
	FieldPayload   = "payload"
	FieldUpdatedAt = "updatedAt"
	FieldSender    = "sender"
	FieldText      = "text"
	FieldTimestamp = "timestamp"
)

func ZoneName(code string) string {
	return "lb-" + code
}

func chatSubscriptionID(zone string) string {
	return "lb-chat-" + zone
}

func listSubscriptionID(zone string) string {
	return "lb-list-" + zone
}

func fieldString(fields map[string]any, key string) (string, bool) {
	s, ok := fields[key].(string)
	return s, ok
}

// fieldInt64 accepts the number shapes a decoded record can carry.
func fieldInt64(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case float64:
		return int64(math.Round(v)), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
