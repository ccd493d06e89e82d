package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "X-Paystack-Signature"

// VerifySignature checks that header is the hex-encoded HMAC-SHA512 of
// rawBody under secret. It must run on the exact bytes received, before any
// JSON parsing. Missing header, missing secret or any mismatch yields false;
// rejection is a normal outcome, never an error.
func VerifySignature(rawBody []byte, header string, secret []byte) bool {
	if len(secret) == 0 || header == "" {
		return false
	}

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	return subtle.ConstantTimeCompare(expected, provided) == 1
}
