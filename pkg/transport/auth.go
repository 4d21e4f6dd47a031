package transport

import "encoding/base64"

// BasicAuthorizer signs requests with HTTP Basic credentials.
type BasicAuthorizer struct {
	Username string
	Password string
}

// Sign implements Authorizer.
func (a BasicAuthorizer) Sign(Request) (map[string]string, error) {
	token := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	return map[string]string{"Authorization": "Basic " + token}, nil
}

// OAuth1Authorizer signs requests with a pre-computed OAuth1 header. Full
// OAuth1 request signing (nonce/timestamp/signature-base-string) belongs to
// the out-of-scope authorizer layer described in spec.md §1; this type is
// the fixed interface boundary an external OAuth1 implementation plugs into.
type OAuth1Authorizer struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string

	// SignFunc computes the Authorization header value for req, given the
	// credentials above. Left nil in tests that don't exercise OAuth1.
	SignFunc func(req Request, a OAuth1Authorizer) (string, error)
}

// Sign implements Authorizer.
func (a OAuth1Authorizer) Sign(req Request) (map[string]string, error) {
	if a.SignFunc == nil {
		return nil, nil
	}
	header, err := a.SignFunc(req, a)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": header}, nil
}
