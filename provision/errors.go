package provision

import "fmt"

// CleanupError reports a failure while removing pre-existing accounts
// for the router user.
type CleanupError struct {
	Username string
	Query    bool
	Cause    error
}

func (e *CleanupError) Error() string {
	if e.Query {
		return fmt.Sprintf("error querying for existing accounts matching %s: %s", e.Username, e.Cause)
	}
	return fmt.Sprintf("error removing old account %s: %s", e.Username, e.Cause)
}

func (e *CleanupError) Unwrap() error {
	return e.Cause
}

// PasswordPolicyError is returned when every generated password was
// rejected by the server's validation plugin.
type PasswordPolicyError struct {
	Username string
	Attempts int
	Cause    error
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf(
		"failed to generate a password for account %s that satisfies the server's password policy after %d attempts: %s. "+
			"Try to decrease the validate_password rules and try the operation again.",
		e.Username, e.Attempts, e.Cause)
}

func (e *PasswordPolicyError) Unwrap() error {
	return e.Cause
}

// AccountError reports a non-retriable failure while creating the
// account or granting its privileges.
type AccountError struct {
	Username string
	Cause    error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("error creating account %s: %s", e.Username, e.Cause)
}

func (e *AccountError) Unwrap() error {
	return e.Cause
}
