package fs

// ErrorPolicy decides how a recursive operation reacts to a per-entry
// failure: return nil to skip the entry and continue, or an error (usually
// the one passed in) to abort the whole operation. A nil policy aborts.
type ErrorPolicy func(path string, err error) error

// Ignore is the policy that skips every failing entry.
func Ignore(string, error) error { return nil }
