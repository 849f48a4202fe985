package main

import "errors"

// PolicyMode selects how missing session credentials are handled. It is a
// deployment setting, not a per-request choice.
type PolicyMode string

const (
	// PolicyLenient forwards the request with whatever credentials exist.
	PolicyLenient PolicyMode = "lenient"
	// PolicyStrict fails the request unless both cookies and token exist.
	PolicyStrict PolicyMode = "strict"
)

var (
	errMissingCookies = errors.New("status response has no cookies")
	errMissingToken   = errors.New("status response has no verification token")
)

// ResolvedCredentials is the policy decision for one request.
type ResolvedCredentials struct {
	UpstreamCredentials
	// Applied is true when any credential will be sent upstream.
	Applied bool
	// FetchErr is the status fetch failure tolerated by a lenient policy.
	FetchErr error
}

// CredentialPolicy turns a status fetch result into credentials or an
// upstream-dependency error.
type CredentialPolicy struct {
	mode PolicyMode
}

func NewCredentialPolicy(mode PolicyMode) CredentialPolicy {
	return CredentialPolicy{mode: mode}
}

// Mode returns the configured policy mode.
func (p CredentialPolicy) Mode() PolicyMode {
	return p.mode
}

// Resolve applies the policy to the outcome of StatusClient.Fetch.
func (p CredentialPolicy) Resolve(creds *UpstreamCredentials, fetchErr error) (ResolvedCredentials, error) {
	if p.mode == PolicyStrict {
		switch {
		case fetchErr != nil:
			return ResolvedCredentials{}, NewUpstreamDependencyError("failed to fetch status endpoint", fetchErr)
		case creds == nil || creds.CookieString == "":
			return ResolvedCredentials{}, NewUpstreamDependencyError("missing cookie string or token from status response", errMissingCookies)
		case creds.Token == "":
			return ResolvedCredentials{}, NewUpstreamDependencyError("missing cookie string or token from status response", errMissingToken)
		}
	}

	resolved := ResolvedCredentials{FetchErr: fetchErr}
	if fetchErr == nil && creds != nil {
		resolved.UpstreamCredentials = *creds
	}
	resolved.Applied = resolved.CookieString != "" || resolved.Token != ""
	return resolved, nil
}
