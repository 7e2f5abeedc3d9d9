package interfaces

import "context"

// Mailer delivers password-reset codes to users. Implementations own the
// message formatting; callers only supply the recipient and the code.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}
