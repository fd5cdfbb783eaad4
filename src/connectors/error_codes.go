package connectors

import "fmt"

// GMOErrorCodes maps GMO FX message codes to short descriptions.
var GMOErrorCodes = map[string]string{
	"ERR-189":  "QUANTITY_EXCEEDS_OPEN_POSITIONS",
	"ERR-200":  "EXISTING_ORDERS_EXCEED_LIMIT",
	"ERR-201":  "INSUFFICIENT_MARGIN",
	"ERR-254":  "POSITION_NOT_FOUND",
	"ERR-414":  "ORDER_SIZE_BELOW_MINIMUM",
	"ERR-423":  "ORDER_SIZE_ABOVE_MAXIMUM",
	"ERR-512":  "INVALID_ORDER_SIZE_UNIT",
	"ERR-760":  "NO_CHANGE_IN_ORDER",
	"ERR-761":  "ORDER_RATE_OUT_OF_RANGE",
	"ERR-5003": "RATE_LIMIT_EXCEEDED",
	"ERR-5008": "API_TIMESTAMP_TOO_LATE",
	"ERR-5009": "API_TIMESTAMP_TOO_EARLY",
	"ERR-5010": "INVALID_API_SIGN",
	"ERR-5011": "API_KEY_NOT_SET",
	"ERR-5012": "INVALID_API_AUTHENTICATION",
	"ERR-5106": "INVALID_REQUEST_PARAMETER",
	"ERR-5114": "MARKET_CLOSED",
	"ERR-5122": "ORDER_REJECTED_BY_MARKET_STATE",
	"ERR-5201": "SCHEDULED_MAINTENANCE",
	"ERR-5202": "EMERGENCY_MAINTENANCE",
	"ERR-5204": "INVALID_API_PATH",
}

// OANDARejectReasons maps v20 order cancel reasons to short descriptions.
var OANDARejectReasons = map[string]string{
	"INSUFFICIENT_MARGIN":                "INSUFFICIENT_MARGIN",
	"INSUFFICIENT_LIQUIDITY":             "INSUFFICIENT_LIQUIDITY",
	"MARKET_HALTED":                      "MARKET_HALTED",
	"UNITS_LIMIT_EXCEEDED":               "ORDER_SIZE_ABOVE_MAXIMUM",
	"FIFO_VIOLATION_SAFEGUARD_VIOLATION": "FIFO_VIOLATION",
	"ACCOUNT_LOCKED":                     "ACCOUNT_LOCKED",
}

// GetErrorMsg returns the description for a broker code, or a generic message
// including the code.
func GetErrorMsg(code string) string {
	if msg, ok := GMOErrorCodes[code]; ok {
		return msg
	}
	if msg, ok := OANDARejectReasons[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BROKER_ERROR_%s", code)
}
