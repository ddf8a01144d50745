package auth

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Source fetches the stored form of the admin secret.
type Source interface {
	Fetch(ctx context.Context) (string, error)
	String() string
}

// FileSource reads the admin secret from a file; surrounding whitespace is
// ignored.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", xerrors.Wrapf(err, "read admin secret file %s", f.Path)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", xerrors.Newf("admin secret file %s is empty", f.Path)
	}
	return s, nil
}

func (f FileSource) String() string { return "file:" + f.Path }

// ssmParameterGetter is the subset of the SSM API needed to read one
// parameter. Extracted as an interface to enable unit testing without live
// AWS credentials.
type ssmParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the admin secret from an SSM SecureString parameter.
type SSMSource struct {
	client ssmParameterGetter
	param  string
}

func NewSSMSource(awsCfg aws.Config, param string) *SSMSource {
	return &SSMSource{client: ssm.NewFromConfig(awsCfg), param: param}
}

func (s *SSMSource) Fetch(ctx context.Context) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.param)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", s.param)
	}
	return v, nil
}

func (s *SSMSource) String() string { return "ssm:" + s.param }

// Load fetches the secret from src and parses it into an AdminSecret.
func Load(ctx context.Context, src Source) (*AdminSecret, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	a, err := NewAdminSecret(raw)
	if err != nil {
		return nil, xerrors.Wrapf(err, "admin secret from %s", src)
	}
	return a, nil
}
