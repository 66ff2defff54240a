package events

// Topics emitted by the sales and return engines.
const (
	TopicTransactionCreated = "transaction.created"
	TopicReturnSubmitted    = "return.submitted"
	TopicReturnApproved     = "return.approved"
	TopicReturnRejected     = "return.rejected"
)
