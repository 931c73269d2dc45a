// Package transport defines the delivery gateway consumed by the
// scheduler and the command layer, independent of the chat backend.
package transport

import "context"

// FailureKind classifies a failed delivery attempt.
type FailureKind int

const (
	// FailTransient covers retryable one-off errors (network, flood
	// limits, internal server errors). The attempt is abandoned but the
	// same notification may fire again on a later due occurrence.
	FailTransient FailureKind = iota

	// FailPermanent means the recipient is unreachable indefinitely:
	// blocked the bot, deactivated their account, or the chat is gone.
	// Triggers the eviction cascade.
	FailPermanent

	// FailInvalidContent means the payload itself is broken (e.g. a
	// stale photo file ID). Never retried, never evicts.
	FailInvalidContent
)

func (k FailureKind) String() string {
	switch k {
	case FailPermanent:
		return "permanent"
	case FailInvalidContent:
		return "invalid-content"
	default:
		return "transient"
	}
}

// Gateway is the outbound side of the chat backend.
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error
	// Copy re-sends an existing message to another chat (broadcast
	// primitive; preserves media without re-uploading).
	Copy(ctx context.Context, chatID, fromChatID int64, messageID int) error
	// Classify maps an error returned by this gateway to a FailureKind.
	Classify(err error) FailureKind
}
