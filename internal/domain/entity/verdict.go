package entity

// ReimbursementStatus is the adjudication outcome for a single invoice
type ReimbursementStatus string

const (
	StatusFullyReimbursed     ReimbursementStatus = "Fully Reimbursed"
	StatusPartiallyReimbursed ReimbursementStatus = "Partially Reimbursed"
	StatusDeclined            ReimbursementStatus = "Declined"
)

// Reasons used for verdicts synthesized without a model call
const (
	ReasonNoReadableText   = "Could not extract readable text from this invoice PDF."
	ReasonMissingFromModel = "No reason provided by the model."
	processingErrorPrefix  = "Processing error: "
)

// InvoiceVerdict is the structured per-invoice result. The JSON keys are the
// same ones the model is asked to produce.
type InvoiceVerdict struct {
	Identifier         string              `json:"Invoice identifier"`
	Status             ReimbursementStatus `json:"Reimbursement Status"`
	ReimbursableAmount int                 `json:"Reimbursable Amount"`
	Reason             string              `json:"Reason"`
}

// NewDeclinedVerdict returns a Declined verdict with a zero amount
func NewDeclinedVerdict(identifier, reason string) InvoiceVerdict {
	if reason == "" {
		reason = ReasonMissingFromModel
	}
	return InvoiceVerdict{
		Identifier:         identifier,
		Status:             StatusDeclined,
		ReimbursableAmount: 0,
		Reason:             reason,
	}
}

// NewErrorVerdict converts a per-invoice failure into a Declined verdict
func NewErrorVerdict(identifier string, err error) InvoiceVerdict {
	return NewDeclinedVerdict(identifier, processingErrorPrefix+err.Error())
}

// IsKnown reports whether s is one of the three adjudication outcomes
func (s ReimbursementStatus) IsKnown() bool {
	switch s {
	case StatusFullyReimbursed, StatusPartiallyReimbursed, StatusDeclined:
		return true
	}
	return false
}
