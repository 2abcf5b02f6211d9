package tools

import (
	"context"
	"fmt"
	"sort"
)

// Registry is the closed dispatch table. Tools are registered at
// construction; nothing can add a tool at runtime.
type Registry struct {
	handlers map[Name]Handler
}

// NewRegistry builds the dispatch table over the flat-file stores under
// dataDir. callerNumber is the registered number reported by the call
// infrastructure for this deployment, empty when unavailable.
func NewRegistry(dataDir, callerNumber string) *Registry {
	customers := newCustomerAdapter(dataDir)
	kyc := newKYCAdapter(dataDir)
	codes := newCodeHistoryAdapter(dataDir)
	transfers := newCashTransferAdapter(dataDir)
	blocks := newBlockStatusAdapter(dataDir)

	return &Registry{handlers: map[Name]Handler{
		ToolCallerContext:       callerContext(callerNumber),
		ToolCustomerLookup:      customers.lookupByMobile,
		ToolCustomerLookupByID:  customers.lookupByOpusID,
		ToolKYCStatus:           kyc.check,
		ToolCodeHistory:         codes.history,
		ToolCashTransferHistory: transfers.history,
		ToolAccountBlockStatus:  blocks.check,
	}}
}

// Invoke dispatches one tool call. An unknown name is a genuine error; the
// flow validator rejects flows referencing unknown tools before they load,
// so hitting this at runtime means a validation gap.
func (r *Registry) Invoke(ctx context.Context, name Name, params Params) Result {
	handler, ok := r.handlers[name]
	if !ok {
		return errorResult(name, fmt.Errorf("unknown tool %q", name))
	}
	if err := ctx.Err(); err != nil {
		return errorResult(name, err)
	}
	return handler(ctx, params)
}

// Known reports whether name is in the dispatch table.
func (r *Registry) Known(name Name) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered tool names in stable order.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
