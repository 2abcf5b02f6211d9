// Package tools implements the lookup tool set: a closed dispatch table of
// read-only queries over the flat-file customer data sources. Every tool
// returns the same two-part Result shape, structured fields plus a
// human-readable message, and reports "not found" as a business outcome,
// never as an error.
package tools

import "context"

// Name identifies a tool in the dispatch table.
type Name string

const (
	ToolCallerContext       Name = "caller_context"
	ToolCustomerLookup      Name = "customer_lookup"
	ToolCustomerLookupByID  Name = "customer_lookup_by_opus_id"
	ToolKYCStatus           Name = "kyc_status"
	ToolCodeHistory         Name = "code_history"
	ToolCashTransferHistory Name = "cash_transfer_history"
	ToolAccountBlockStatus  Name = "account_block_status"
)

// Status discriminates the three result variants.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Params carries the query parameters for a tool invocation.
type Params map[string]string

// Result is the uniform tool return shape. Fields always contains a
// "status" key mirroring Status so branch predicates can key on it.
// Message is never raw error text; error-variant results keep the cause in
// Fields["error"] for logging only.
type Result struct {
	Tool    Name              `json:"tool"`
	Status  Status            `json:"status"`
	Fields  map[string]string `json:"fields"`
	Message string            `json:"message"`
}

// Handler executes one tool invocation.
type Handler func(ctx context.Context, params Params) Result

// IsError reports whether the result is the genuine-failure variant.
func (r Result) IsError() bool {
	return r.Status == StatusError
}

// Field returns a structured field by name. "status" is always present.
func (r Result) Field(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// ErrorResult builds the genuine-failure variant for callers outside the
// dispatch table, such as a timed-out invocation the handler never finished.
func ErrorResult(tool Name, err error) Result {
	return errorResult(tool, err)
}

func okResult(tool Name, fields map[string]string, message string) Result {
	return build(tool, StatusOK, fields, message)
}

func notFoundResult(tool Name, fields map[string]string, message string) Result {
	return build(tool, StatusNotFound, fields, message)
}

func errorResult(tool Name, err error) Result {
	return build(tool, StatusError, map[string]string{"error": err.Error()}, "")
}

func build(tool Name, status Status, fields map[string]string, message string) Result {
	if fields == nil {
		fields = make(map[string]string, 1)
	}
	fields["status"] = string(status)
	return Result{Tool: tool, Status: status, Fields: fields, Message: message}
}
