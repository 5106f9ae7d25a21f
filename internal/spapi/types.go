package spapi

import (
	"context"
	"time"

	"feeledger/internal/core"
)

// EventGroup is one financial event group header.
type EventGroup struct {
	ID       string
	Status   string
	Start    time.Time
	End      time.Time
	Currency string
}

// Events is one group's raw payload, event-list name to raw events.
type Events map[string][]core.Document

// Order listing date modes: filter by order creation or by last update.
const (
	DateModeCreated = "created"
	DateModeUpdated = "updated"
)

// OrderWindow bounds an order listing in time. Mode selects whether the
// bounds apply to the creation date or the last-update date; empty means
// created.
type OrderWindow struct {
	After  time.Time
	Before time.Time
	Mode   string
}

// Client is the subset of the selling-partner API the importers consume.
// Implementations handle authentication, paging and throttling internally;
// the returned documents are raw decoded JSON.
type Client interface {
	ListEventGroups(ctx context.Context, after, before time.Time) ([]EventGroup, error)
	ListEventsForGroup(ctx context.Context, groupID string) (Events, error)
	ListOrders(ctx context.Context, w OrderWindow) ([]core.Document, error)
}
