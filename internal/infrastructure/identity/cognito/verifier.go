package cognito

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

// API is the subset of the Cognito user pool client used for verification.
type API interface {
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// Verifier resolves a user pool access token to the caller identity.
// GetUser validates the signature; with a pool ID set, tokens minted by any
// other pool are refused before the call.
type Verifier struct {
	client     API
	userPoolID string
}

func NewVerifier(client API, userPoolID string) *Verifier {
	return &Verifier{client: client, userPoolID: strings.TrimSpace(userPoolID)}
}

func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("missing token"))
	}

	if err := v.checkPool(token); err != nil {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}

	out, err := v.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{AccessToken: aws.String(token)})
	if err != nil {
		if isAuthError(err) {
			return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "cognito get user", err)
		}
		return domain.Identity{}, domain.WrapError(domain.ErrUpstream, "cognito get user", err)
	}

	id := domain.Identity{Subject: aws.ToString(out.Username)}
	for _, attr := range out.UserAttributes {
		switch aws.ToString(attr.Name) {
		case "sub":
			id.Subject = aws.ToString(attr.Value)
		case "email":
			id.Email = domain.NormalizeEmail(aws.ToString(attr.Value))
		}
	}
	if id.Subject == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "cognito get user", errors.New("user has no subject"))
	}
	return id, nil
}

func (v *Verifier) checkPool(token string) error {
	if v.userPoolID == "" {
		return nil
	}
	claims := gojwt.MapClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed access token: %w", err)
	}
	issuer, err := claims.GetIssuer()
	if err != nil {
		return fmt.Errorf("read issuer: %w", err)
	}
	if !strings.HasSuffix(issuer, "/"+v.userPoolID) {
		return fmt.Errorf("token issued by %q, not pool %s", issuer, v.userPoolID)
	}
	if use, ok := claims["token_use"].(string); ok && use != "access" {
		return fmt.Errorf("token_use %q is not an access token", use)
	}
	return nil
}

func isAuthError(err error) bool {
	var notAuthorized *types.NotAuthorizedException
	var notFound *types.UserNotFoundException
	var notConfirmed *types.UserNotConfirmedException
	var reset *types.PasswordResetRequiredException
	return errors.As(err, &notAuthorized) ||
		errors.As(err, &notFound) ||
		errors.As(err, &notConfirmed) ||
		errors.As(err, &reset)
}
