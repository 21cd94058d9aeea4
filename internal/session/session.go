// Package session holds ephemeral per-user UI cursor state: the suggestion
// review index, the fill-wizard step, the in-progress multi-choice builder.
// This state is advisory and safe to lose; losing it only resets a user's
// place in a flow, never data committed to the document.
package session

import (
	"context"
	"fmt"
	"time"
)

// Purposes used by the lifecycle engine.
const (
	PurposeSuggestionCursor = "sug"
	PurposeWizardCursor     = "wiz"
	PurposeChoiceBuilder    = "mc"
)

// DefaultTTL bounds how long an abandoned flow lingers.
const DefaultTTL = 30 * time.Minute

// Key identifies one user's cursor for one flow in one guild.
type Key struct {
	Guild   string
	User    string
	Purpose string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Guild, k.User, k.Purpose)
}

// Store is the cursor backend. Values are small JSON blobs owned by the
// caller. Get returns ok=false for missing or expired entries.
type Store interface {
	Get(ctx context.Context, key Key) (value []byte, ok bool, err error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}
