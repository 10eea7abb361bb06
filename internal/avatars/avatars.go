// Package avatars stores group avatar images in S3 and cleans them up when
// they are replaced or their group is deleted.
package avatars

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/queue"
	"github.com/movieclub/backend/pkg/storage"
)

// ErrStorageDisabled is returned when no object store is configured.
var ErrStorageDisabled = errors.New("avatar storage not configured")

// ObjectStore is the S3 surface avatars use. *storage.S3 implements it.
type ObjectStore interface {
	AvatarsBucket() string
	PresignExpire() time.Duration
	GeneratePresignedUploadURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
	PublicObjectURL(bucket, key string) string
	AvatarKeyFromURL(rawURL string) (string, bool)
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64, publicRead bool) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// CleanupQueue defers object deletion to the worker.
type CleanupQueue interface {
	EnqueueAvatarCleanup(ctx context.Context, payload queue.AvatarCleanupPayload) error
}

// Groups reads and patches groups on behalf of a user.
type Groups interface {
	FindOne(ctx context.Context, id, userID int64) (*models.Group, error)
	Update(ctx context.Context, id, userID int64, patch models.GroupPatch) (updated, previous *models.Group, err error)
}

// Manager coordinates avatar objects. A nil store disables uploads and makes
// releases a no-op. A nil queue deletes objects inline.
type Manager struct {
	store  ObjectStore
	queue  CleanupQueue
	groups Groups
	logger *zap.Logger
}

// NewManager creates an avatar manager.
func NewManager(store ObjectStore, q CleanupQueue, groups Groups, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, queue: q, groups: groups, logger: logger}
}

// Enabled reports whether an object store is configured.
func (m *Manager) Enabled() bool { return m.store != nil }

// ReleaseAvatar schedules deletion of the object behind avatarURL. URLs that
// do not point into the avatars bucket are left alone.
func (m *Manager) ReleaseAvatar(ctx context.Context, groupID int64, avatarURL string) error {
	if m.store == nil {
		return nil
	}
	key, ok := m.store.AvatarKeyFromURL(avatarURL)
	if !ok {
		m.logger.Debug("avatar not managed, skipping cleanup", zap.Int64("group_id", groupID), zap.String("url", avatarURL))
		return nil
	}
	bucket := m.store.AvatarsBucket()
	if m.queue == nil {
		return m.store.DeleteObject(ctx, bucket, key)
	}
	err := m.queue.EnqueueAvatarCleanup(ctx, queue.AvatarCleanupPayload{GroupID: groupID, Bucket: bucket, Key: key})
	if err != nil {
		m.logger.Warn("enqueue avatar cleanup failed, deleting inline", zap.Int64("group_id", groupID), zap.Error(err))
		return m.store.DeleteObject(ctx, bucket, key)
	}
	return nil
}

// UploadURL is a presigned PUT for a new group avatar.
type UploadURL struct {
	UploadURL   string `json:"uploadUrl"`
	Key         string `json:"key"`
	PublicURL   string `json:"publicUrl"`
	ContentType string `json:"contentType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// PresignUpload returns a presigned PUT for a new avatar of groupID.
// contentType must already be validated.
func (m *Manager) PresignUpload(ctx context.Context, groupID int64, contentType string) (*UploadURL, error) {
	if m.store == nil {
		return nil, ErrStorageDisabled
	}
	bucket := m.store.AvatarsBucket()
	key := storage.AvatarKey(groupID, contentType)
	expire := m.store.PresignExpire()
	u, err := m.store.GeneratePresignedUploadURL(ctx, bucket, key, contentType, expire)
	if err != nil {
		return nil, err
	}
	return &UploadURL{
		UploadURL:   u,
		Key:         key,
		PublicURL:   m.store.PublicObjectURL(bucket, key),
		ContentType: contentType,
		ExpiresIn:   int(expire.Seconds()),
	}, nil
}

// Replace uploads body as the new avatar of groupID, points the group at it
// and releases the previous avatar.
func (m *Manager) Replace(ctx context.Context, groupID, userID int64, contentType string, body io.Reader, size int64) (*models.Group, error) {
	if m.store == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := m.groups.FindOne(ctx, groupID, userID); err != nil {
		return nil, err
	}
	bucket := m.store.AvatarsBucket()
	key := storage.AvatarKey(groupID, contentType)
	url, err := m.store.Upload(ctx, bucket, key, contentType, body, size, true)
	if err != nil {
		return nil, err
	}
	g, prev, err := m.groups.Update(ctx, groupID, userID, models.GroupPatch{AvatarURL: models.SetString(url)})
	if err != nil {
		if delErr := m.store.DeleteObject(ctx, bucket, key); delErr != nil {
			m.logger.Warn("delete orphaned avatar", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}
	if prev.AvatarURL != nil && *prev.AvatarURL != "" && *prev.AvatarURL != url {
		if err := m.ReleaseAvatar(ctx, groupID, *prev.AvatarURL); err != nil {
			m.logger.Warn("release previous avatar", zap.Int64("group_id", groupID), zap.Error(err))
		}
	}
	m.logger.Info("group avatar replaced", zap.Int64("group_id", groupID), zap.Int64("user_id", userID), zap.String("key", key))
	return g, nil
}
