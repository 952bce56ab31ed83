package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-detect/internal/annotation"
	"github.com/example/face-detect/internal/detection"
	"github.com/example/face-detect/internal/logging"
	"github.com/example/face-detect/internal/retry"
)

// PropertyRepository defines the persistence operations needed by the use case.
type PropertyRepository interface {
	Get(ctx context.Context, documentID, key string) (string, bool, error)
	Put(ctx context.Context, documentID, key, value string) error
	ListValues(ctx context.Context, key string) ([]string, error)
}

// Options tunes the use case. Zero values fall back to defaults.
type Options struct {
	PropertyKey string
	ModalTTL    time.Duration
	CacheTTL    time.Duration
}

// Snapshot is the state a client renders after an action.
type Snapshot struct {
	DocumentID string                `json:"documentId"`
	Main       annotation.MainView   `json:"main"`
	Modal      annotation.ModalState `json:"modal"`
}

type sessionKey struct {
	userID     string
	documentID string
}

// session holds the controller of one user's open dialog on a document.
type session struct {
	mu       sync.Mutex
	ctrl     *annotation.Controller
	lastUsed time.Time
	closed   bool
}

// AnnotationUseCase routes user actions to per-document controllers. Actions
// for the same user and document run one at a time; a session lives only
// while its dialog is open. Store reads and writes of one document are
// serialised across users so the record cache never goes stale.
type AnnotationUseCase struct {
	repo        PropertyRepository
	cache       Cache
	detector    detection.Client
	logger      *zap.Logger
	propertyKey string
	modalTTL    time.Duration
	cacheTTL    time.Duration
	now         func() time.Time

	cacheRetry retry.Policy

	mu       sync.Mutex
	sessions map[sessionKey]*session

	docMu    sync.Mutex
	docLocks map[string]*documentLock
}

// NewAnnotationUseCase constructs a new use case instance.
func NewAnnotationUseCase(repo PropertyRepository, cache Cache, detector detection.Client, logger *zap.Logger, opts Options) *AnnotationUseCase {
	if opts.PropertyKey == "" {
		opts.PropertyKey = "face-detect-data"
	}
	if opts.ModalTTL <= 0 {
		opts.ModalTTL = 30 * time.Minute
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &AnnotationUseCase{
		repo:        repo,
		cache:       cache,
		detector:    detector,
		logger:      logger.Named("annotation_usecase"),
		propertyKey: opts.PropertyKey,
		modalTTL:    opts.ModalTTL,
		cacheTTL:    opts.CacheTTL,
		now:         time.Now,
		cacheRetry:  retry.DefaultPolicy(),
		sessions:    make(map[sessionKey]*session),
		docLocks:    make(map[string]*documentLock),
	}
}

// View loads the document's annotation and any dialog the user has open.
func (uc *AnnotationUseCase) View(ctx context.Context, userID, documentID string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.view", func(*annotation.Controller) error { return nil })
}

// OpenModal opens a fresh dialog awaiting an image.
func (uc *AnnotationUseCase) OpenModal(ctx context.Context, userID, documentID string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.open_modal", func(ctrl *annotation.Controller) error {
		ctrl.OpenModal()
		return nil
	})
}

// CloseModal discards the user's dialog without touching the stored record.
func (uc *AnnotationUseCase) CloseModal(ctx context.Context, userID, documentID string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.close_modal", func(ctrl *annotation.Controller) error {
		ctrl.CloseModal()
		return nil
	})
}

// SubmitImage runs detection for the image and moves the dialog to captioning on success.
func (uc *AnnotationUseCase) SubmitImage(ctx context.Context, userID, documentID, title, path string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.submit_image", func(ctrl *annotation.Controller) error {
		return ctrl.SubmitImage(ctx, title, path)
	})
}

// SaveCaptions stores the captioned faces and closes the dialog.
func (uc *AnnotationUseCase) SaveCaptions(ctx context.Context, userID, documentID string, captions []string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.save_captions", func(ctrl *annotation.Controller) error {
		return ctrl.SaveCaptions(ctx, captions)
	})
}

// Reset clears the document's annotation.
func (uc *AnnotationUseCase) Reset(ctx context.Context, userID, documentID string) (*Snapshot, error) {
	return uc.run(ctx, userID, documentID, "usecase.reset", func(ctrl *annotation.Controller) error {
		return ctrl.Reset(ctx)
	})
}

// OpenSessions reports how many dialogs are currently open.
func (uc *AnnotationUseCase) OpenSessions() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.sessions)
}

func (uc *AnnotationUseCase) run(ctx context.Context, userID, documentID, operation string, action func(*annotation.Controller) error) (*Snapshot, error) {
	key := sessionKey{userID: userID, documentID: documentID}
	for {
		s := uc.acquire(key)
		s.mu.Lock()
		if s.closed {
			// pruned or released between lookup and lock
			s.mu.Unlock()
			continue
		}

		err := s.ctrl.Initialize(ctx)
		if err == nil {
			err = action(s.ctrl)
		}
		snapshot := &Snapshot{DocumentID: documentID, Main: s.ctrl.Main(), Modal: s.ctrl.Modal()}
		s.lastUsed = uc.now()
		if !s.ctrl.ModalOpen() {
			uc.release(key, s)
		}
		s.mu.Unlock()

		if err != nil {
			logging.WithOperation(ctx, uc.logger, operation, documentID).Debug("action rejected", zap.Error(err))
			return nil, err
		}
		return snapshot, nil
	}
}

func (uc *AnnotationUseCase) acquire(key sessionKey) *session {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.pruneLocked()
	if s, ok := uc.sessions[key]; ok {
		return s
	}
	s := &session{
		ctrl:     annotation.NewController(key.documentID, &documentStore{uc: uc, documentID: key.documentID}, uc.detector, uc.logger),
		lastUsed: uc.now(),
	}
	uc.sessions[key] = s
	return s
}

// release drops a session. The caller holds s.mu.
func (uc *AnnotationUseCase) release(key sessionKey, s *session) {
	s.closed = true
	uc.mu.Lock()
	if uc.sessions[key] == s {
		delete(uc.sessions, key)
	}
	uc.mu.Unlock()
}

// pruneLocked drops dialogs idle for longer than the modal TTL. Sessions busy
// with an action are skipped. The caller holds uc.mu.
func (uc *AnnotationUseCase) pruneLocked() {
	cutoff := uc.now().Add(-uc.modalTTL)
	for key, s := range uc.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(cutoff) {
			s.closed = true
			delete(uc.sessions, key)
			uc.logger.Debug("pruned idle dialog", zap.String("document_id", key.documentID), zap.String("user_id", key.userID))
		}
		s.mu.Unlock()
	}
}
