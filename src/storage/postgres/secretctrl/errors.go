package secretctrl

import "errors"

// ErrNoCredential is returned by Get when no credential row exists for the
// requested provider.
var ErrNoCredential = errors.New("no credential stored")
