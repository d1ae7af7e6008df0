package audithook

// Action constants for audit events.
const (
	// Account, plan and subscription actions
	ActionAccountRegistered    = "account.registered"
	ActionPlanCreated          = "plan.created"
	ActionPlanArchived         = "plan.archived"
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Program actions
	ActionEntitlementProvisioned = "entitlement.provisioned"
	ActionEnrollmentEnded        = "enrollment.ended"

	// Balance actions
	ActionCreditsGranted      = "credits.granted"
	ActionCreditsConsumed     = "credits.consumed"
	ActionInsufficientCredits = "credits.insufficient"
	ActionConsumeConflict     = "credits.conflict"
)

// Resource constants for audit events.
const (
	ResourceAccount      = "account"
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceEntitlement  = "entitlement"
	ResourceBatch        = "batch"
	ResourceTransaction  = "transaction"
)

// Category constants for audit events.
const (
	CategoryAccount      = "account"
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryProgram      = "program"
	CategoryBalance      = "balance"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
