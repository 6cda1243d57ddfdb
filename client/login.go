package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/pharmacare/go-session"
)

// Credentials is the pharmacy login payload.
type Credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Normalize trims both fields and lower cases the email.
func (c Credentials) Normalize() Credentials {
	return Credentials{
		Email:    strings.ToLower(strings.TrimSpace(c.Email)),
		Password: strings.TrimSpace(c.Password),
	}
}

// Validate will validate the payload
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

type loginResponse struct {
	Token         string          `json:"token"`
	PharmacyStaff json.RawMessage `json:"pharmacyStaff"`
	PharmacyID    json.Number     `json:"pharmacyId"`
}

// LoginResult is a completed pharmacy login.
type LoginResult struct {
	Token string
	Staff *session.PharmacyStaff
	// RedirectTo is the dashboard URL that skips the pharmacy guard once.
	RedirectTo string
}

// PharmacyLogin authenticates staff credentials and, on success, replaces
// the session of the bound Manager with the returned token and staff user.
func (c *Client) PharmacyLogin(ctx context.Context, creds Credentials) (*LoginResult, error) {
	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		return nil, withMessage(ErrInvalidCredentials, "", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, pharmacyLoginEndpoint, creds)
	if err != nil {
		return nil, err
	}

	status, body, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		message := backendMessage(body)
		c.logger.Info("pharmacy login refused: status=%d", status)
		return nil, &ResponseError{
			Method:  http.MethodPost,
			Path:    pharmacyLoginEndpoint,
			Status:  status,
			Message: message,
			Err:     withMessage(ErrLoginFailed, message, nil),
		}
	}

	staff, token, err := parseLoginResponse(body)
	if err != nil {
		return nil, err
	}

	if err := c.manager.Login(ctx, token, staff); err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:      token,
		Staff:      staff,
		RedirectTo: c.pharmacyHome + "?justLoggedIn=true",
	}, nil
}

func parseLoginResponse(body []byte) (*session.PharmacyStaff, string, error) {
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", withMessage(session.ErrInvalidLoginResponse, "", err)
	}

	raw := bytes.TrimSpace(resp.PharmacyStaff)
	if resp.Token == "" || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, "", withMessage(session.ErrInvalidLoginResponse, "", nil)
	}

	// the login endpoint only ever returns staff
	shape, err := decodeStaff(raw)
	if err != nil {
		return nil, "", err
	}

	var rootID int64
	if resp.PharmacyID != "" {
		rootID, _ = resp.PharmacyID.Int64()
	}
	if err := shape.EnsurePharmacyID(rootID); err != nil {
		return nil, "", err
	}
	shape.UserType = session.KindPharmacy
	return shape, resp.Token, nil
}

func decodeStaff(raw []byte) (*session.PharmacyStaff, error) {
	var shape map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&shape); err != nil {
		return nil, withMessage(session.ErrInvalidLoginResponse, "", err)
	}
	user, err := session.UserFromShape(shape, session.KindPharmacy)
	if err != nil {
		return nil, withMessage(session.ErrInvalidLoginResponse, "", err)
	}
	return user.(*session.PharmacyStaff), nil
}
