package objectstore

import (
	"context"
	"errors"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore хранит файлы в MongoDB GridFS. Путь объекта служит
// именем файла, при повторной загрузке читается последняя ревизия.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSStore(db *mongo.Database, bucketName, baseURL string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, err
	}
	return &GridFSStore{bucket: bucket, baseURL: baseURL}, nil
}

func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}

func (s *GridFSStore) Put(ctx context.Context, p, contentType string, r io.Reader) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.bucket.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	_, err = s.bucket.UploadFromStream(p, r, opts)
	return err
}

func (s *GridFSStore) Open(ctx context.Context, p string) (io.ReadCloser, string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, "", err
	}
	if err := s.bucket.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, "", err
	}
	stream, err := s.bucket.OpenDownloadStreamByName(p)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if meta := stream.GetFile().Metadata; len(meta) > 0 {
		if ct, ok := meta.Lookup("contentType").StringValueOK(); ok && ct != "" {
			contentType = ct
		}
	}
	return stream, contentType, nil
}

// Delete удаляет все ревизии файла.
func (s *GridFSStore) Delete(ctx context.Context, p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	cursor, err := s.bucket.FindContext(ctx, bson.M{"filename": p})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var file struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return err
		}
		if err := s.bucket.DeleteContext(ctx, file.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return cursor.Err()
}

func (s *GridFSStore) PublicURL(p string) string {
	return publicURL(s.baseURL, p)
}
