package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseDrafted           Type = "expense.drafted"
	TypeExpenseSubmitted         Type = "expense.submitted"
	TypeExpenseProcessingStarted Type = "expense.processing_started"
	TypeExpenseApproved          Type = "expense.approved"
	TypeExpenseRejected          Type = "expense.rejected"
	TypeExpensePaid              Type = "expense.paid"
	TypeAttachmentAdded          Type = "attachment.added"
	TypeExtractionRequested      Type = "extraction.requested"
	TypeExtractionCompleted      Type = "extraction.completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseDrafted,
		TypeExpenseSubmitted,
		TypeExpenseProcessingStarted,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeExpensePaid,
		TypeAttachmentAdded,
		TypeExtractionRequested,
		TypeExtractionCompleted:
		return true
	default:
		return false
	}
}
