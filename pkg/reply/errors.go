package reply

import "errors"

var (
	// ErrUnknownCaller is returned by Take when the caller has no entry,
	// either because it never registered or because its entry was already
	// consumed by an earlier dispatch.
	ErrUnknownCaller = errors.New("reply: unknown caller")

	// ErrDuplicateCaller is returned by Register when the caller already has an entry.
	ErrDuplicateCaller = errors.New("reply: duplicate caller")

	// ErrRegistrySealed is returned by Register once the dispatch loop owns the registry.
	ErrRegistrySealed = errors.New("reply: registry sealed")

	// ErrNilSender is returned by Register when given a nil sender.
	ErrNilSender = errors.New("reply: nil sender")

	// ErrReplyUndeliverable is returned by Send when the receiving caller is gone.
	ErrReplyUndeliverable = errors.New("reply: receiver gone")
)
