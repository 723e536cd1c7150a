package oauth2

import (
	"github.com/emersion/go-sasl"
)

// NewXOAUTH2Client returns a SASL client for the XOAUTH2 mechanism used by
// Gmail and Outlook IMAP.
func NewXOAUTH2Client(username, accessToken string) sasl.Client {
	return &xoauth2Client{username: username, token: accessToken}
}

type xoauth2Client struct {
	username string
	token    string
}

func (a *xoauth2Client) Start() (mech string, ir []byte, err error) {
	ir = []byte("user=" + a.username + "\x01auth=Bearer " + a.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next answers the server's error challenge with an empty response so the
// server can finish the exchange with a tagged NO.
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if len(challenge) > 0 {
		return []byte{}, nil
	}
	return nil, sasl.ErrUnexpectedServerChallenge
}
