package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/padel-system/models"
)

const (
	archivePrefix = "finalized"

	ArchiveContentType = "application/json; charset=utf-8"
	// Архивная запись после записи не меняется.
	archiveCacheControl = "public, max-age=31536000, immutable"
)

var ErrArchiveKeyInvalid = errors.New("finalized match has no usable archive id")

// ArchiveMirror кладёт JSON-копию каждой архивной записи в объектное хранилище.
type ArchiveMirror struct {
	store ObjectStore
}

func NewArchiveMirror(store ObjectStore) *ArchiveMirror {
	return &ArchiveMirror{store: store}
}

// ArchiveKey раскладывает записи по месяцу финализации:
// finalized/2026/05/<id>.json.
func ArchiveKey(fm *models.FinalizedMatch) (string, error) {
	if fm.ID == "" || strings.ContainsAny(fm.ID, `/\`) || fm.FinalizedAt.IsZero() {
		return "", fmt.Errorf("%w: id %q, finalized at %v", ErrArchiveKeyInvalid, fm.ID, fm.FinalizedAt)
	}
	at := fm.FinalizedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s.json", archivePrefix, at.Year(), int(at.Month()), fm.ID), nil
}

func archiveObject(fm *models.FinalizedMatch) (Object, error) {
	key, err := ArchiveKey(fm)
	if err != nil {
		return Object{}, err
	}
	body, err := json.Marshal(fm)
	if err != nil {
		return Object{}, fmt.Errorf("failed to encode finalized match %s: %w", fm.ID, err)
	}
	return Object{
		Key:          key,
		ContentType:  ArchiveContentType,
		CacheControl: archiveCacheControl,
		Body:         body,
		Metadata: map[string]string{
			"source-match-id": fm.SourceMatchID,
			"winning-side":    strconv.Itoa(fm.WinningSide),
		},
	}, nil
}

func (m *ArchiveMirror) Put(ctx context.Context, fm *models.FinalizedMatch) error {
	obj, err := archiveObject(fm)
	if err != nil {
		return err
	}
	if _, err := m.store.Put(ctx, obj); err != nil {
		return fmt.Errorf("failed to mirror finalized match %s: %w", fm.ID, err)
	}
	return nil
}
