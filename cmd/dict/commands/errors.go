package commands

import (
	"errors"
	"fmt"
	"os"

	"dictsync/internal/apperr"
)

// describe renders err for the operator, with a hint on what to do next when there is one.
func describe(err error) string {
	msg := fmt.Sprintf("error: %v", err)
	hint := hintFor(err)
	if hint == "" {
		return msg
	}
	return fmt.Sprintf("%s\nhint: %s", msg, hint)
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "create the configuration file or point --config at it"
	case errors.Is(err, apperr.ErrSnapshotNotFound):
		return "there is no local copy yet, re-run with --refresh to fetch it"
	case errors.Is(err, apperr.ErrLoginNoSetCookie):
		return "too many logins may get the account blocked for a while, wait before trying again"
	case errors.Is(err, apperr.ErrNotLoggedIn), errors.Is(err, apperr.ErrLoginMissingCookie):
		return "check the username and password in the configuration, then re-run with --refresh"
	case errors.Is(err, apperr.ErrTemplateNotFound), errors.Is(err, apperr.ErrMissingHeaders):
		return "every request used by the command needs an entry with headers under requests in the configuration"
	case errors.Is(err, apperr.ErrUserAborted):
		return "nothing was uploaded, the local copy is unchanged"
	}

	var statusErr *apperr.StatusError
	if errors.As(err, &statusErr) && (statusErr.Code == 401 || statusErr.Code == 403) {
		return "the session may have expired, delete the cookie file and re-run with --refresh"
	}

	switch apperr.KindOf(err) {
	case apperr.KindTransport:
		return "the service could not be reached, check the network connection"
	case apperr.KindConfiguration:
		return "check the configuration file given by --config"
	}
	return ""
}
