// Package errors defines the error taxonomy shared by every package in the
// twitch-observer module.
//
// Three kinds of failure flow through the client:
//
//   - Sentinel errors (ErrNotConnected, ErrAuthenticationFailed, ...) that
//     callers match with errors.Is to drive control flow.
//   - ClassifiedError values that carry a transient/invalid/fatal class so
//     retry and supervision layers can decide without string matching.
//   - Plain wrapped errors produced by Wrap for human-readable context.
//
// The wrapping helpers follow a single format, "component.method: action
// failed: cause", so log lines across the module read uniformly:
//
//	if err := t.conn.SetWriteDeadline(d); err != nil {
//	    return errors.WrapTransient(err, "TCP", "WriteLine", "set deadline")
//	}
//
// Protocol lines that cannot be parsed are NOT errors in this taxonomy; the
// codec turns them into event.MalformedEvent values so consumers observe
// protocol drift as data rather than as engine failures.
package errors
