package model

import (
	"errors"
	"fmt"
)

// ErrUnknownOperation marks an operation name outside the closed set.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is a billable feature invocation. The set is closed: every
// operation carries its credit cost, its unlimited-tier bypass eligibility and
// its usage-window group as data, so an unknown operation is an error at parse
// time rather than a silent zero-cost lookup.
type Operation string

const (
	OpInlineAiAsk     Operation = "inlineAiAsk"
	OpAiChat          Operation = "aiChat"
	OpDocGeneration   Operation = "docGeneration"
	OpImageGeneration Operation = "imageGeneration"
	OpDeepResearch    Operation = "deepResearch"
	OpPodcast         Operation = "podcast"
	OpVideoGeneration Operation = "videoGeneration"
)

// ResetWindow says when an operation's usage counter returns to zero.
type ResetWindow string

const (
	ResetDaily   ResetWindow = "daily"
	ResetMonthly ResetWindow = "monthly"
)

// OperationSpec is the per-operation entitlement data.
type OperationSpec struct {
	Cost            int
	UnlimitedBypass bool
	Window          ResetWindow
	FreeLimit       int // per window for unsubscribed users; 0 means fully paywalled
	SubscribedLimit int // advisory once subscribed, recorded for analytics
}

var operationSpecs = map[Operation]OperationSpec{
	OpInlineAiAsk:     {Cost: 1, UnlimitedBypass: true, Window: ResetDaily, FreeLimit: 20, SubscribedLimit: 500},
	OpAiChat:          {Cost: 2, UnlimitedBypass: true, Window: ResetDaily, FreeLimit: 10, SubscribedLimit: 200},
	OpDocGeneration:   {Cost: 5, UnlimitedBypass: true, Window: ResetMonthly, FreeLimit: 3, SubscribedLimit: 100},
	OpImageGeneration: {Cost: 10, UnlimitedBypass: true, Window: ResetMonthly, FreeLimit: 5, SubscribedLimit: 100},
	OpDeepResearch:    {Cost: 25, UnlimitedBypass: true, Window: ResetMonthly, FreeLimit: 2, SubscribedLimit: 50},
	OpPodcast:         {Cost: 40, UnlimitedBypass: true, Window: ResetMonthly, FreeLimit: 4, SubscribedLimit: 30},
	OpVideoGeneration: {Cost: 70, UnlimitedBypass: false, Window: ResetMonthly, FreeLimit: 0, SubscribedLimit: 20},
}

// Operations lists every known operation in a stable order.
var Operations = []Operation{
	OpInlineAiAsk,
	OpAiChat,
	OpDocGeneration,
	OpImageGeneration,
	OpDeepResearch,
	OpPodcast,
	OpVideoGeneration,
}

// Spec returns the entitlement data for op. The bool is false for operations
// outside the closed set.
func (op Operation) Spec() (OperationSpec, bool) {
	spec, ok := operationSpecs[op]
	return spec, ok
}

// ParseOperation validates a client-supplied operation name.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if _, ok := operationSpecs[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return op, nil
}
