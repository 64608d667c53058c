package books

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/bookgest/internal/pipeline"
	"github.com/dgallion1/bookgest/internal/storage"
)

// Deletion outcomes.
const (
	OutcomeUserRemovedOnly = "user_removed_only"
	OutcomeFullyDeleted    = "fully_deleted"
)

// Purge job states.
const (
	PurgeSuccess = "success"
	PurgeFailed  = "failed"
)

// VectorPurger removes every vector indexed for one book.
type VectorPurger interface {
	DeleteByBook(ctx context.Context, bookID string) error
}

// AssetPurger is the slice of object storage the asset sweep needs.
type AssetPurger interface {
	ListFiles(ctx context.Context) ([]storage.ObjectInfo, error)
	DeleteFile(ctx context.Context, key string) error
}

// TaskDispatcher enqueues background purge jobs.
type TaskDispatcher interface {
	Submit(name string, run pipeline.TaskFunc) (*pipeline.Job, error)
}

type bookRegistry interface {
	Get(ctx context.Context, bookID string) (Book, error)
	PullUploader(ctx context.Context, bookID, userID string) error
	Remove(ctx context.Context, bookID string) error
}

var _ bookRegistry = (*Registry)(nil)

// DeleteResult is the outcome of one deletion request.
type DeleteResult struct {
	BookID       string `json:"book_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	VectorTaskID string `json:"vector_purge_task_id,omitempty"`
	AssetTaskID  string `json:"asset_purge_task_id,omitempty"`
}

// PurgeResult reports one background purge. Purge tasks return it with a
// nil error even when the purge goes wrong, so the job always completes and
// the failure stays inspectable in the result.
type PurgeResult struct {
	BookID  string `json:"book_id"`
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// Deleter applies the ref-counting deletion rule and dispatches storage
// cleanup for books nobody references anymore.
type Deleter struct {
	registry bookRegistry
	vectors  VectorPurger
	assets   AssetPurger
	runner   TaskDispatcher
	log      *slog.Logger
}

func NewDeleter(registry bookRegistry, vectors VectorPurger, assets AssetPurger, runner TaskDispatcher, log *slog.Logger) (*Deleter, error) {
	if registry == nil || vectors == nil || assets == nil || runner == nil {
		return nil, fmt.Errorf("deleter: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Deleter{
		registry: registry,
		vectors:  vectors,
		assets:   assets,
		runner:   runner,
		log:      log,
	}, nil
}

// Task wraps one deletion request as a runnable job.
func (d *Deleter) Task(bookID, userID string) pipeline.TaskFunc {
	return func(ctx context.Context) (any, error) {
		return d.Delete(ctx, bookID, userID)
	}
}

// Delete removes one user's reference to a book. While other uploaders
// remain, only the requester is pulled from uploaded_by. For the sole
// owner the record is deleted synchronously and two purge jobs are
// dispatched; fully_deleted is reported before they confirm, and a purge
// failure never resurrects the record.
func (d *Deleter) Delete(ctx context.Context, bookID, userID string) (DeleteResult, error) {
	book, err := d.registry.Get(ctx, bookID)
	if err != nil {
		return DeleteResult{}, err
	}

	if len(book.UploadedBy) > 1 {
		if err := d.registry.PullUploader(ctx, bookID, userID); err != nil {
			return DeleteResult{}, err
		}
		d.log.Info("removed uploader reference",
			"book_id", bookID, "user_id", userID, "remaining", len(book.UploadedBy)-1)
		return DeleteResult{BookID: bookID, Title: book.Title, Status: OutcomeUserRemovedOnly}, nil
	}

	// Sole owner: drop the record first so the book disappears from
	// listings immediately, then clean storage in the background.
	if err := d.registry.Remove(ctx, bookID); err != nil && !errors.Is(err, ErrNotFound) {
		return DeleteResult{}, err
	}

	res := DeleteResult{BookID: bookID, Title: book.Title, Status: OutcomeFullyDeleted}

	if job, err := d.runner.Submit("purge_vectors", d.vectorPurgeTask(bookID)); err != nil {
		d.log.Error("dispatch vector purge", "book_id", bookID, "error", err)
	} else {
		res.VectorTaskID = job.ID
	}
	if job, err := d.runner.Submit("purge_assets", d.assetPurgeTask(bookID)); err != nil {
		d.log.Error("dispatch asset purge", "book_id", bookID, "error", err)
	} else {
		res.AssetTaskID = job.ID
	}

	d.log.Info("book fully deleted", "book_id", bookID, "title", book.Title)
	return res, nil
}

func (d *Deleter) vectorPurgeTask(bookID string) pipeline.TaskFunc {
	return func(ctx context.Context) (any, error) {
		res := PurgeResult{BookID: bookID, Status: PurgeSuccess}
		if err := d.vectors.DeleteByBook(ctx, bookID); err != nil {
			d.log.Error("vector purge failed", "book_id", bookID, "error", err)
			res.Status = PurgeFailed
			res.Error = err.Error()
		}
		return res, nil
	}
}

// assetPurgeTask sweeps the whole bucket and deletes objects whose
// metadata names the book. Individual delete failures are counted, not
// fatal; a later sweep can retry them because deletes are idempotent.
func (d *Deleter) assetPurgeTask(bookID string) pipeline.TaskFunc {
	return func(ctx context.Context) (any, error) {
		res := PurgeResult{BookID: bookID, Status: PurgeSuccess}

		infos, err := d.assets.ListFiles(ctx)
		if err != nil {
			d.log.Error("asset purge list failed", "book_id", bookID, "error", err)
			res.Status = PurgeFailed
			res.Error = err.Error()
			return res, nil
		}

		for _, info := range infos {
			if info.Meta[storage.MetaBookID] != bookID {
				continue
			}
			if err := d.assets.DeleteFile(ctx, info.Key); err != nil {
				d.log.Error("asset purge delete failed",
					"book_id", bookID, "key", info.Key, "error", err)
				res.Failed++
				continue
			}
			res.Deleted++
		}
		if res.Failed > 0 {
			res.Status = PurgeFailed
		}
		return res, nil
	}
}
