package storage

import "context"

// Object - одна запись для объектного хранилища. Тело держим целиком:
// архивные записи маленькие, а длина нужна до отправки.
type Object struct {
	Key          string
	ContentType  string
	CacheControl string
	Body         []byte
	// Metadata уходит в пользовательские заголовки x-amz-meta-*.
	Metadata map[string]string
}

// StoredObject - что хранилище вернуло после записи.
type StoredObject struct {
	Key  string
	URL  string
	ETag string
}

// ObjectStore - S3-совместимое хранилище архивных копий.
type ObjectStore interface {
	Put(ctx context.Context, obj Object) (*StoredObject, error)
}
