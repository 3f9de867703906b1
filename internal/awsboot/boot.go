// Package awsboot loads the AWS configuration and builds the clients used
// by the optional AWS-backed features (SSM token source, S3 export archive).
//
// Nothing here runs unless one of those features is configured, so the CLI
// works without AWS credentials.
package awsboot

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/mentor-metrics-cli/internal/auth"
)

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// Loader loads the shared AWS config at most once.
type Loader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

// Config returns the default AWS config (environment, shared config files,
// instance role).
func (l *Loader) Config(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("load AWS config: %w", l.err)
			return
		}
		log.Debug().Str("region", l.cfg.Region).Msg("AWS config loaded")
	})
	return l.cfg, l.err
}

// SSM returns an SSM client. Its signature matches auth.Deps.NewSSM.
func (l *Loader) SSM(ctx context.Context) (auth.ParameterGetter, error) {
	cfg, err := l.Config(ctx)
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}

// S3 creates an S3 client and presigner for bucket.
func (l *Loader) S3(ctx context.Context, bucket string) (S3Clients, error) {
	if bucket == "" {
		return S3Clients{}, fmt.Errorf("archive bucket is not configured")
	}
	cfg, err := l.Config(ctx)
	if err != nil {
		return S3Clients{}, err
	}
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}, nil
}
