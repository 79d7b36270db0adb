package models

// StatusClass is the 3-way normalized trade status.
type StatusClass string

const (
	StatusOngoing  StatusClass = "ongoing"
	StatusReserved StatusClass = "reserved"
	StatusSold     StatusClass = "sold"
)

// AllStatusClasses lists every class in display order.
var AllStatusClasses = []StatusClass{StatusOngoing, StatusReserved, StatusSold}

var statusTable = map[string]StatusClass{
	"Ongoing": StatusOngoing,
	"ongoing": StatusOngoing,
	"ONGOING": StatusOngoing,
	"판매중":     StatusOngoing,
	"ON_SALE": StatusOngoing,

	"Reserved": StatusReserved,
	"reserved": StatusReserved,
	"RESERVED": StatusReserved,
	"예약중":      StatusReserved,

	"Completed": StatusSold,
	"completed": StatusSold,
	"COMPLETED": StatusSold,
	"Soldout":   StatusSold,
	"soldout":   StatusSold,
	"SOLDOUT":   StatusSold,
	"거래완료":      StatusSold,
	"판매완료":      StatusSold,
}

// ClassifyStatus maps a raw upstream status token to its class. Unknown and
// empty tokens are ongoing.
func ClassifyStatus(raw string) StatusClass {
	if c, ok := statusTable[raw]; ok {
		return c
	}
	return StatusOngoing
}

// ParseStatusClass validates a user-supplied class name.
func ParseStatusClass(s string) (StatusClass, bool) {
	switch StatusClass(s) {
	case StatusOngoing, StatusReserved, StatusSold:
		return StatusClass(s), true
	}
	return "", false
}
