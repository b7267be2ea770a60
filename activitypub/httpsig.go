package activitypub

import (
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/go-fed/httpsig"
)

var signedHeaders = []string{"(request-target)", "host", "date", "digest"}

// SignRequest signs an outgoing HTTP request with the given private key and
// adds the Digest header for body.
// keyId format: "https://example.com/series/one-piece#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	// Signers are not safe for concurrent use, build one per request
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, body)
}
