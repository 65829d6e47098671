// Package archive copies finished usage logs to S3.
package archive

import (
	"context"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/replicatedcom/usagemon/log"
	"github.com/replicatedcom/usagemon/usage"
)

const (
	MetadataDigest        = "Digest"
	MetadataSchemaVersion = "Schema-Version"
)

type Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

// Result describes an uploaded log.
type Result struct {
	Location string
	Key      string
	Digest   digest.Digest
	Version  int64
}

func New(region, bucket, prefix string) (*Archiver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}
	return NewWithUploader(s3manager.NewUploader(sess), bucket, prefix), nil
}

func NewWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string) *Archiver {
	return &Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Key is the object name a container's log is stored under.
func (a *Archiver) Key(container string) string {
	return path.Join(a.prefix, path.Base(container)+".bin")
}

// Upload sends the log at file for container. The log must start with a
// valid header; its digest and schema version are stored as metadata.
func (a *Archiver) Upload(ctx context.Context, file, container string) (*Result, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "open usage log")
	}
	defer f.Close()

	header := make([]byte, usage.HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, errors.Wrapf(err, "read header of %s", file)
	}
	version, err := usage.DecodeHeader(header)
	if err != nil {
		return nil, errors.Wrapf(err, "archive %s", file)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "rewind %s", file)
	}
	dgst, err := digest.Canonical.FromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "digest %s", file)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "rewind %s", file)
	}

	key := a.Key(container)
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			MetadataDigest:        aws.String(dgst.String()),
			MetadataSchemaVersion: aws.String(strconv.FormatInt(version, 10)),
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s to s3://%s/%s", file, a.bucket, key)
	}

	log.Infof("Archived %s to %s (%s)", file, out.Location, dgst)
	return &Result{
		Location: out.Location,
		Key:      key,
		Digest:   dgst,
		Version:  version,
	}, nil
}
