package sync

import (
	"github.com/styrit/listsync/internal/drive"
)

// Notice is a user-facing message produced by background sync work.
type Notice struct {
	Title string
	Text  string
	Err   error
}

// Notices returns the channel on which the engine publishes user notices.
// Slow consumers lose notices instead of blocking the engine.
func (e *Engine) Notices() <-chan Notice { return e.noticeCh }

func (e *Engine) notify(n Notice) {
	select {
	case e.noticeCh <- n:
	default:
	}
}

func noticeFromError(err error) Notice {
	switch drive.KindOf(err) {
	case drive.KindOffline:
		return Notice{
			Title: "Offline",
			Text:  "It seems you are offline. Your changes will be synchronized once the connection is back.",
			Err:   err,
		}
	case drive.KindQuotaExceeded:
		return Notice{
			Title: "Storage full",
			Text:  "There is not enough space left in your cloud storage. Free up some space and try again.",
			Err:   err,
		}
	case drive.KindAuthRequired:
		return Notice{
			Title: "Login required",
			Text:  "Please log in to synchronize your data.",
			Err:   err,
		}
	case drive.KindAuthTimeout:
		return Notice{
			Title: "Login timed out",
			Text:  "The login did not complete in time. Please try again.",
			Err:   err,
		}
	default:
		return Notice{
			Title: "Sync failed",
			Text:  "Your data could not be synchronized. It will be retried automatically.",
			Err:   err,
		}
	}
}
