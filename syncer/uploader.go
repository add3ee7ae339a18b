package syncer

import (
	"context"

	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/types"
)

// Uploader sends one artifact to the remote store.
// A nil error means the store confirmed the artifact with an id and URL.
type Uploader interface {
	Upload(ctx context.Context, a types.ArtifactUpload) (types.ArtifactReceipt, error)
}

// Notifier is told about every confirmed upload. Failures never affect
// the sync record.
type Notifier interface {
	NotifySynced(ctx context.Context, ev types.ArtifactSynced) error
}

// Journal records confirmed uploads for later auditing.
type Journal interface {
	Append(ctx context.Context, ev types.ArtifactSynced) error
}

// RemoteUploader uploads through the cloud media ingestion endpoint.
type RemoteUploader struct {
	Client *remote.Client
}

// Upload implements Uploader.
func (u RemoteUploader) Upload(ctx context.Context, a types.ArtifactUpload) (types.ArtifactReceipt, error) {
	r, err := u.Client.UploadMedia(ctx, remote.MediaUpload{
		Filename:    a.Filename,
		Category:    a.Category,
		ContentType: a.ContentType,
		Data:        a.Data,
	})
	if err != nil {
		return types.ArtifactReceipt{}, err
	}
	return types.ArtifactReceipt{ID: r.ID, URL: r.URL}, nil
}
