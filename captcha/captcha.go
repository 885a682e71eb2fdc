// Package captcha solves the FunCaptcha (Arkose Labs) challenges that can
// interrupt the login flow.
package captcha

import "context"

// Solver abstracts CAPTCHA solving services.
type Solver interface {
	// Solve returns a solution token for the challenge identified by siteKey
	// (the Arkose public key) on pageURL.
	Solve(ctx context.Context, siteKey, pageURL string) (token string, err error)

	// Balance returns the account balance in USD.
	Balance(ctx context.Context) (float64, error)
}
