package nsapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ryhazerus/nsapi/credstore"
)

// authTransport layers nation authentication on top of the governed
// transport. Requests carrying a "nation" query parameter get the
// appropriate credential headers injected, and tokens minted by the API
// are captured from the response into the credential store.
type authTransport struct {
	next   http.RoundTripper
	store  credstore.Store
	logger *slog.Logger
}

// AuthTransport wraps a governed transport with credential handling for
// private nation shards and commands. Credentials are looked up in and
// written back to store, keyed by the request's "nation" query parameter:
//
//   - A stored password is sent as X-Password until the API returns an
//     X-Autologin token, which replaces it.
//   - A stored autologin token is sent as X-Autologin.
//   - A session pin, minted by the API on the first authenticated
//     response, is sent as X-Pin and refreshed from each response.
//
// Requests without a nation parameter pass through untouched. A nil base
// uses the limiter's own governed transport.
func (l *Limiter) AuthTransport(base http.RoundTripper, store credstore.Store) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{
		next:   l.Transport(base),
		store:  store,
		logger: l.logger,
	}
}

func (a *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isAPIHost(req.URL) {
		return a.next.RoundTrip(req)
	}
	nation := req.URL.Query().Get("nation")
	if nation == "" {
		return a.next.RoundTrip(req)
	}

	ctx := req.Context()
	cred, err := a.store.Get(ctx, nation)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return nil, err
	}

	if cred != (credstore.Credential{}) {
		req = req.Clone(ctx)
		switch {
		case cred.Autologin != "":
			req.Header.Set("X-Autologin", cred.Autologin)
		case cred.Password != "":
			req.Header.Set("X-Password", cred.Password)
		}
		if cred.Pin != "" {
			req.Header.Set("X-Pin", cred.Pin)
		}
	}

	resp, err := a.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	updated := cred
	if autologin := resp.Header.Get("X-Autologin"); autologin != "" {
		updated.Autologin = autologin
		// The password has served its purpose.
		updated.Password = ""
	}
	if pin := resp.Header.Get("X-Pin"); pin != "" {
		updated.Pin = pin
	}
	if updated != cred {
		if err := a.store.Put(ctx, nation, updated); err != nil {
			a.logger.Warn("failed to persist nation credential",
				slog.String("nation", nation),
				slog.Any("error", err))
		}
	}

	return resp, nil
}
