package client

import (
	"context"
	"net/http"

	"github.com/pharmacare/go-session"
)

// Pharmacy is a pharmacy the logged in staff member belongs to.
type Pharmacy struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
	Address            string `json:"address"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	Website            string `json:"website,omitempty"`
	Active             bool   `json:"active"`
	OwnerID            int64  `json:"ownerId,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

// MyPharmacies lists the pharmacies of the current staff member, retrying
// transient failures with the configured backoff. A 401 or another client
// error stops the loop at once.
func (c *Client) MyPharmacies(ctx context.Context) session.RetryResult[[]Pharmacy] {
	return session.Retry(ctx, c.backoff, func(ctx context.Context, attempt int) ([]Pharmacy, error) {
		if c.manager.BearerToken(ctx) == "" {
			return nil, session.Permanent(withMessage(ErrUnauthorized, "Authentication token not found", nil))
		}

		var out []Pharmacy
		err := c.Do(ctx, http.MethodGet, myPharmaciesEndpoint, nil, &out)
		if err == nil {
			if out == nil {
				out = []Pharmacy{}
			}
			return out, nil
		}

		c.logger.Warn("fetching pharmacies failed on attempt %d: %v", attempt, err)
		if !retryable(err) {
			return nil, session.Permanent(err)
		}
		return nil, err
	})
}

func retryable(err error) bool {
	if re, ok := err.(*ResponseError); ok {
		switch {
		case re.Status == http.StatusRequestTimeout, re.Status == http.StatusTooManyRequests:
			return true
		case re.Status >= 400 && re.Status < 500:
			return false
		}
		return true
	}
	return session.IsBackendUnavailable(err)
}
