package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// S3Config configures the S3 artifact backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
}

func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// s3API is the slice of the S3 client the service uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Service stores artifacts under
// {prefix}/{app}/{user}/{session|user}/{filename}/{version}. The part kind
// rides in object metadata and the MIME type in Content-Type.
type S3Service struct {
	client s3API
	bucket string
	prefix string
}

const s3MetaKind = "part-kind"

// NewS3Service builds the service on the AWS default credential chain.
func NewS3Service(ctx context.Context, cfg S3Config) (*S3Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return NewS3ServiceWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

// NewS3ServiceWithClient wires an existing client, letting tests inject a
// fake.
func NewS3ServiceWithClient(client s3API, bucket, prefix string) *S3Service {
	return &S3Service{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Service) objectDir(app, user, session, filename string) string {
	return path.Join(s.prefix, app, user, scopeSegment(session, filename), filename)
}

func (s *S3Service) Save(ctx context.Context, app, user, session, filename string, part llm.Part) (int, error) {
	if err := checkScope(app, user, session, filename); err != nil {
		return 0, err
	}
	versions, err := s.ListVersions(ctx, app, user, session, filename)
	if err != nil {
		return 0, err
	}
	next := 0
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	data, meta := encodePart(part)
	key := path.Join(s.objectDir(app, user, session, filename), strconv.Itoa(next))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(meta.MIMEType),
		Metadata:    map[string]string{s3MetaKind: meta.Kind},
	})
	if err != nil {
		return 0, fmt.Errorf("put artifact %s: %w", key, err)
	}
	return next, nil
}

func (s *S3Service) Load(ctx context.Context, app, user, session, filename string, version *int) (*llm.Part, error) {
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	v := 0
	if version != nil {
		v = *version
	} else {
		versions, err := s.ListVersions(ctx, app, user, session, filename)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, nil
		}
		v = versions[len(versions)-1]
	}
	if v < 0 {
		return nil, nil
	}

	key := path.Join(s.objectDir(app, user, session, filename), strconv.Itoa(v))
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("get artifact %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}

	meta := localMetadata{
		Kind:     resp.Metadata[s3MetaKind],
		MIMEType: aws.ToString(resp.ContentType),
	}
	part := decodePart(data, meta)
	return &part, nil
}

func (s *S3Service) ListKeys(ctx context.Context, app, user, session string) ([]string, error) {
	if app == "" || user == "" || session == "" {
		return nil, fmt.Errorf("%w: app, user, and session are required", ErrInvalidKey)
	}
	var out []string
	for _, scope := range []string{session, "user"} {
		prefix := path.Join(s.prefix, app, user, scope) + "/"
		var token *string
		for {
			resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				ContinuationToken: token,
			})
			if err != nil {
				return nil, fmt.Errorf("list artifacts under %s: %w", prefix, err)
			}
			for _, cp := range resp.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
				if name != "" {
					out = append(out, name)
				}
			}
			if !aws.ToBool(resp.IsTruncated) || resp.NextContinuationToken == nil {
				break
			}
			token = resp.NextContinuationToken
		}
		if scope == session && session == "user" {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3Service) Delete(ctx context.Context, app, user, session, filename string) error {
	if err := checkScope(app, user, session, filename); err != nil {
		return err
	}
	versions, err := s.ListVersions(ctx, app, user, session, filename)
	if err != nil {
		return err
	}
	dir := s.objectDir(app, user, session, filename)
	for _, v := range versions {
		key := path.Join(dir, strconv.Itoa(v))
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("delete artifact %s: %w", key, err)
		}
	}
	return nil
}

func (s *S3Service) ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error) {
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	prefix := s.objectDir(app, user, session, filename) + "/"
	var out []int
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list versions under %s: %w", prefix, err)
		}
		for _, obj := range resp.Contents {
			v, err := strconv.Atoi(path.Base(aws.ToString(obj.Key)))
			if err != nil {
				continue
			}
			out = append(out, v)
		}
		if !aws.ToBool(resp.IsTruncated) || resp.NextContinuationToken == nil {
			break
		}
		token = resp.NextContinuationToken
	}
	sort.Ints(out)
	return out, nil
}
