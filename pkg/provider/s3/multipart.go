package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/3leaps/twinpane/pkg/provider"
)

const (
	// MinPartSize is the smallest part S3 accepts (except for the last part).
	MinPartSize int64 = 5 << 20

	// MaxParts is the S3 limit on parts per multipart upload.
	MaxParts = 10000
)

// UploadMultipart uploads body as a multipart object.
//
// Parts are read sequentially from body and uploaded by up to
// opts.Concurrency workers; at most Concurrency part buffers are held in
// memory at once. Any failure aborts the multipart upload.
func (p *Provider) UploadMultipart(ctx context.Context, key string, body io.Reader, size int64, opts provider.MultipartOptions) error {
	partSize := opts.PartSize
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	if size > 0 && (size+partSize-1)/partSize > MaxParts {
		return &provider.ProviderError{
			Op:       "UploadMultipart",
			Provider: provider.ProviderS3,
			Bucket:   p.bucket,
			Key:      key,
			Err:      fmt.Errorf("part size %d yields more than %d parts for %d bytes", partSize, MaxParts, size),
		}
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	create := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if opts.ContentType != "" {
		create.ContentType = aws.String(opts.ContentType)
	}
	out, err := p.client.CreateMultipartUpload(ctx, create)
	if err != nil {
		return p.wrapError("CreateMultipartUpload", key, err)
	}
	uploadID := aws.ToString(out.UploadId)

	parts, err := p.uploadParts(ctx, key, uploadID, body, partSize, concurrency, opts.Progress)
	if err != nil {
		// Abort must run even when ctx is what failed.
		p.abortMultipartUpload(context.WithoutCancel(ctx), key, uploadID)
		return err
	}

	_, err = p.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(p.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		p.abortMultipartUpload(context.WithoutCancel(ctx), key, uploadID)
		return p.wrapError("CompleteMultipartUpload", key, err)
	}
	return nil
}

func (p *Provider) uploadParts(ctx context.Context, key, uploadID string, body io.Reader, partSize int64, concurrency int, progress func(int64)) ([]types.CompletedPart, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		parts    []types.CompletedPart
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	sem := make(chan struct{}, concurrency)
	for partNumber := int32(1); ; partNumber++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		buf := make([]byte, partSize)
		n, readErr := io.ReadFull(body, buf)
		last := errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF)
		if readErr != nil && !last {
			<-sem
			fail(fmt.Errorf("read part %d of %s: %w", partNumber, key, readErr))
			break
		}
		// An exhausted body after at least one part ends the upload; an
		// empty body still needs one (empty) part.
		if n == 0 && partNumber > 1 {
			<-sem
			break
		}

		wg.Add(1)
		go func(number int32, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := p.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(p.bucket),
				Key:           aws.String(key),
				UploadId:      aws.String(uploadID),
				PartNumber:    aws.Int32(number),
				Body:          bytes.NewReader(data),
				ContentLength: aws.Int64(int64(len(data))),
			})
			if err != nil {
				fail(p.wrapError("UploadPart", key, err))
				return
			}

			mu.Lock()
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(number)})
			mu.Unlock()
			if progress != nil {
				progress(int64(len(data)))
			}
		}(partNumber, buf[:n])

		if last {
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError("UploadPart", key, err)
	}

	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})
	return parts, nil
}

func (p *Provider) abortMultipartUpload(ctx context.Context, key, uploadID string) {
	_, _ = p.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}
