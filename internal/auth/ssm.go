package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ParameterGetter is the subset of the SSM client used to read the token.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ssmSource reads a bearer token from a SecureString parameter. The token
// has no known expiry; Refresh re-reads the parameter.
type ssmSource struct {
	ctx    context.Context
	client ParameterGetter
	name   string
}

// Token implements oauth2.TokenSource.
func (s *ssmSource) Token() (*oauth2.Token, error) {
	start := time.Now()
	result, err := s.client.GetParameter(s.ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, &TokenError{
			Type:    ErrTypeUnknown,
			Source:  SourceSSM,
			Message: fmt.Sprintf("read parameter %s", s.name),
			Err:     err,
		}
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return nil, &TokenError{
			Type:    ErrTypeInvalidToken,
			Source:  SourceSSM,
			Message: fmt.Sprintf("parameter %s is empty", s.name),
		}
	}
	log.Debug().Str("param", s.name).Dur("elapsed", time.Since(start)).Msg("Access token loaded from SSM")
	return &oauth2.Token{AccessToken: aws.ToString(result.Parameter.Value), TokenType: "Bearer"}, nil
}
