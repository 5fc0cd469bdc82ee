package entity

// Status is the approval lifecycle status of an expense
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusPaid       Status = "paid"
)

// AllStatuses lists every lifecycle status in declaration order
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusProcessing,
	StatusApproved,
	StatusRejected,
	StatusPaid,
}

var terminalStatuses = map[Status]bool{
	StatusApproved: true,
	StatusRejected: true,
	StatusPaid:     true,
}

// IsValid returns true if the status is one of the defined constants
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true for approved, rejected and paid
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// ProcessingStatus summarizes extraction progress over all attachments of an expense
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingExtracting ProcessingStatus = "extracting"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// AllProcessingStatuses lists every processing status in declaration order
var AllProcessingStatuses = []ProcessingStatus{
	ProcessingPending,
	ProcessingExtracting,
	ProcessingCompleted,
	ProcessingFailed,
}

// IsValid returns true if the processing status is one of the defined constants
func (p ProcessingStatus) IsValid() bool {
	switch p {
	case ProcessingPending, ProcessingExtracting, ProcessingCompleted, ProcessingFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the processing status
func (p ProcessingStatus) String() string {
	return string(p)
}

// DefaultCurrency is applied when a submission omits the currency
const DefaultCurrency = "USD"

// Standard expense categories offered to submitters. Category stays a
// free-form label; this list only seeds pickers.
var StandardCategories = []string{
	"Meals & Entertainment",
	"Travel & Lodging",
	"Transportation",
	"Office Supplies",
	"Software & Technology",
	"Professional Services",
	"Marketing & Advertising",
	"Training & Education",
	"Utilities",
	"Other",
}
