package ratelimit

import "strings"

// Category is a server-defined rate-limit bucket. Categories are
// throttled independently; CategoryAll is the wildcard bucket that
// covers every category at once.
type Category string

const (
	// CategoryAll is the wildcard "all categories" bucket
	CategoryAll Category = ""
	// CategoryError covers error events
	CategoryError Category = "error"
	// CategoryTransaction covers performance transactions
	CategoryTransaction Category = "transaction"
	// CategorySession covers release health sessions
	CategorySession Category = "session"
	// CategoryAttachment covers attachments
	CategoryAttachment Category = "attachment"
	// CategoryMonitor covers cron check-ins
	CategoryMonitor Category = "monitor"
)

// String returns a printable name, naming the wildcard explicitly.
func (c Category) String() string {
	if c == CategoryAll {
		return "all"
	}
	return string(c)
}

// FromItemType maps an envelope item type to its rate-limit category.
// Unknown item types fall into the wildcard bucket, so an envelope the
// transport cannot categorize is still subject to blanket limits.
func FromItemType(itemType string) Category {
	switch itemType {
	case "event":
		return CategoryError
	case "transaction":
		return CategoryTransaction
	case "session":
		return CategorySession
	case "attachment":
		return CategoryAttachment
	case "check_in":
		return CategoryMonitor
	default:
		return CategoryAll
	}
}

// parseCategory interprets a category token from the rate-limit header.
// An empty token means the limit applies to all categories; unknown
// tokens are reported as not ok and skipped by the parser.
func parseCategory(token string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(token))) {
	case CategoryAll:
		return CategoryAll, true
	case CategoryError:
		return CategoryError, true
	case CategoryTransaction:
		return CategoryTransaction, true
	case CategorySession:
		return CategorySession, true
	case CategoryAttachment:
		return CategoryAttachment, true
	case CategoryMonitor:
		return CategoryMonitor, true
	default:
		return CategoryAll, false
	}
}
