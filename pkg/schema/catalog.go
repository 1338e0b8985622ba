package schema

// Definition is a catalog entry a task or gateway node can select.
type Definition struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EventData is the event configuration carried by event nodes.
// Catalog selection fills Key, Name and Type; EventName and TimeDuration are
// free-form fields edited in place.
type EventData struct {
	Key          string `json:"key,omitempty"`
	Name         string `json:"name,omitempty"`
	Type         string `json:"eventType,omitempty"`
	EventName    string `json:"eventName,omitempty"`
	TimeDuration string `json:"timeDuration,omitempty"`
}

// IsZero reports whether no event field is set.
func (e EventData) IsZero() bool {
	return e == EventData{}
}

// Condition is a reusable named predicate attached to conditional edges.
type Condition struct {
	ConditionKey        string `json:"conditionKey"`
	ConditionName       string `json:"conditionName"`
	ConditionExpression string `json:"conditionExpression"`
	Description         string `json:"description,omitempty"`
}

// Product is a product catalog entry used by assignment mappings.
type Product struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Employee is an employee catalog entry used by assignment mappings.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Mapping pairs a product with an employee on an assignment task.
// ProductName, ProductAmount and EmployeeName are denormalized from the
// catalog at the time the mapping was added or edited.
type Mapping struct {
	ID            int64   `json:"id"`
	ProductID     string  `json:"productId"`
	EmployeeID    string  `json:"employeeId"`
	ProductName   string  `json:"productName,omitempty"`
	ProductAmount float64 `json:"productAmount,omitempty"`
	EmployeeName  string  `json:"employeeName,omitempty"`
}

// NodeCatalog is the set of definitions offered to task, gateway and event nodes.
type NodeCatalog struct {
	Tasks    []Definition `json:"tasks"`
	Gateways []Definition `json:"gateways"`
	Events   []Definition `json:"events"`
}

// WorkflowSummary is one entry of the backend workflow listing.
type WorkflowSummary struct {
	ID           string `json:"id,omitempty"`
	WorkflowName string `json:"workflowName"`
	ClientID     string `json:"clientId,omitempty"`
	CompanyID    string `json:"companyId,omitempty"`
}
