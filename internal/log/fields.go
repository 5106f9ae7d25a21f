package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRunID       = "run_id"
	FieldTenant      = "tenant_id"
	FieldMarketplace = "marketplace"
	FieldPeriod      = "period"
	FieldGroupID     = "group_id"
	FieldTable       = "table"
	FieldRows        = "rows"
	FieldAttempt     = "attempt"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentSPAPI   = "spapi"
	ComponentFinance = "finance"
	ComponentOrders  = "orders"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentReview  = "review"
	ComponentExport  = "export"
)

// Operations defines standard operation names
const (
	OpListGroups = "list_groups"
	OpFetchGroup = "fetch_group"
	OpListOrders = "list_orders"
	OpExtract    = "extract"
	OpUpsert     = "upsert"
	OpExport     = "export"
	OpNotify     = "notify"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRun adds run identity fields
func (f LogFields) WithRun(runID, tenant, marketplace, period string) LogFields {
	f[FieldRunID] = runID
	if tenant != "" {
		f[FieldTenant] = tenant
	}
	f[FieldMarketplace] = marketplace
	f[FieldPeriod] = period
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// Args flattens the fields into alternating key/value slog arguments.
func (f LogFields) Args() []any {
	args := make([]any, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, v)
	}
	return args
}
