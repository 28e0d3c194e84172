package sinks

import (
	"bytes"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Mirror satisfies persistence.Uploader, copying saved state files to a
// durable S3 bucket after they have already landed safely on local disk.
// Grounded on the teacher's direct dependency on github.com/aws/aws-sdk-go.
type S3Mirror struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Mirror creates an S3Mirror for bucket in region, keying every
// upload under prefix.
func NewS3Mirror(bucket, prefix, region string) (*S3Mirror, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &S3Mirror{client: s3.New(sess), bucket: bucket, prefix: prefix}, nil
}

// Upload puts data at <prefix>/<path> in the configured bucket.
func (m *S3Mirror) Upload(path string, data []byte) error {
	key := m.prefix + "/" + path
	_, err := m.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
