package foxess

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
)

// SigningVariant is one way of authenticating a request. The provider
// accepts different separators depending on the deployment, so token mode
// tries each in order.
type SigningVariant struct {
	Name string
	Sign func(cred credentials, path string, body []byte, timestamp string, h http.Header)
}

type credentials struct {
	token     string
	appID     string
	appSecret string
}

func (c credentials) appMode() bool {
	return c.appID != "" && c.appSecret != ""
}

func (c credentials) configured() bool {
	return c.token != "" || c.appMode()
}

// tokenVariants are tried in order in token mode. The first uses a literal
// backslash-r backslash-n, which some deployments expect.
var tokenVariants = []SigningVariant{
	{Name: "literal", Sign: tokenSigner(`\r\n`)},
	{Name: "crlf", Sign: tokenSigner("\r\n")},
	{Name: "lf", Sign: tokenSigner("\n")},
}

var appVariant = SigningVariant{Name: "hmac-sha1", Sign: appSigner}

// variants returns the signing variants to try for cred, app mode taking
// precedence.
func variants(cred credentials) []SigningVariant {
	switch {
	case cred.appMode():
		return []SigningVariant{appVariant}
	case cred.token != "":
		return tokenVariants
	default:
		return nil
	}
}

// TokenSignature is md5(path + sep + token + sep + timestamp) in hex.
func TokenSignature(path, token, timestamp, sep string) string {
	sum := md5.Sum([]byte(path + sep + token + sep + timestamp))
	return hex.EncodeToString(sum[:])
}

// AppSignature is HMAC-SHA1 keyed by the app secret over appID + timestamp +
// body, in hex.
func AppSignature(appID, appSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(appSecret))
	mac.Write([]byte(appID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func tokenSigner(sep string) func(credentials, string, []byte, string, http.Header) {
	return func(cred credentials, path string, _ []byte, timestamp string, h http.Header) {
		sig := TokenSignature(path, cred.token, timestamp, sep)
		h.Set("token", cred.token)
		h.Set("timestamp", timestamp)
		h.Set("sign", sig)
		h.Set("signature", sig)
	}
}

func appSigner(cred credentials, _ string, body []byte, timestamp string, h http.Header) {
	sig := AppSignature(cred.appID, cred.appSecret, timestamp, body)
	h.Set("appId", cred.appID)
	h.Set("timestamp", timestamp)
	h.Set("sign", sig)
	h.Set("signature", sig)
}
