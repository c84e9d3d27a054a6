package sellergo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultSigningService is the service name used in the signature's
// credential scope.
const DefaultSigningService = "execute-api"

// DefaultSigningRegion is used when no region is configured.
const DefaultSigningRegion = "us-east-1"

// RequestSigner signs outbound requests with the SigV4 scheme: a canonical
// request (method, path, canonical query, sorted lower-cased headers, hex
// SHA-256 of the body) is signed with an HMAC-SHA256 key derived from the
// secret and scoped by date/region/service. The signature is deterministic
// for a fixed signing time.
type RequestSigner struct {
	provider aws.CredentialsProvider
	signer   *v4.Signer
	region   string
	service  string
	now      func() time.Time
}

// NewRequestSigner builds a signer from the key-credential pair. When a role
// ARN is configured, signing credentials are obtained by assuming that role
// through STS (cached and refreshed by the credentials cache); otherwise the
// static pair is used directly.
func NewRequestSigner(creds Credentials, region, service string) (*RequestSigner, error) {
	if !creds.SigningEnabled() {
		return nil, &ClientError{
			Kind:    KindRequestSigning,
			Message: "request signing requires both accessKeyId and secretAccessKey",
		}
	}
	if region == "" {
		region = DefaultSigningRegion
	}
	if service == "" {
		service = DefaultSigningService
	}

	static := credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")

	var provider aws.CredentialsProvider = static
	if creds.RoleARN != "" {
		stsClient := sts.New(sts.Options{
			Region:      region,
			Credentials: static,
		})
		provider = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, creds.RoleARN))
	}

	return &RequestSigner{
		provider: provider,
		signer:   v4.NewSigner(),
		region:   region,
		service:  service,
		now:      time.Now,
	}, nil
}

// Sign attaches the signature headers to req. The body must be the exact
// payload that will be sent; it is hashed, never mutated.
func (s *RequestSigner) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.provider.Retrieve(ctx)
	if err != nil {
		return &ClientError{
			Kind:    KindRequestSigning,
			Message: "resolving signing credentials failed",
			Cause:   err,
		}
	}

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash(body), s.service, s.region, s.now()); err != nil {
		return &ClientError{
			Kind:    KindRequestSigning,
			Message: "computing request signature failed",
			Cause:   err,
		}
	}
	return nil
}

// payloadHash returns the lowercase hex SHA-256 of the request body. An
// empty body hashes to the SHA-256 of the empty string, as the scheme
// requires.
func payloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
