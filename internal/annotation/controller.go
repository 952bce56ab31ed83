package annotation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/example/face-detect/internal/detection"
	"github.com/example/face-detect/internal/logging"
)

// ImageReadError is shown in the modal when detection fails for any reason.
const ImageReadError = "Can't read the given image path. Make sure the path is correct."

var (
	// ErrMissingField is returned when the image title or path is blank.
	ErrMissingField = errors.New("image title and path are required")
	// ErrMissingCaption is returned when any face is left without a caption.
	ErrMissingCaption = errors.New("every face needs a caption")
	// ErrCaptionCount is returned when captions do not line up with the detected faces.
	ErrCaptionCount = errors.New("caption count does not match detected faces")
	// ErrInvalidState is returned when an action does not fit the current modal stage.
	ErrInvalidState = errors.New("action not allowed in current modal state")

	errNoOriginalImage = errors.New("detection returned no original image")
)

// Store persists the annotation record of a single document.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, record Record) error
}

// MainState is the state of the document-embedded view.
type MainState string

const (
	MainEmpty     MainState = "empty"
	MainPopulated MainState = "populated"
)

// ModalStage is the sub-state of the annotation dialog.
type ModalStage string

const (
	ModalClosed           ModalStage = "closed"
	ModalAwaitingImage    ModalStage = "awaiting_image"
	ModalAwaitingCaptions ModalStage = "awaiting_captions"
)

// MainView holds what the document-embedded view displays.
type MainView struct {
	State MainState        `json:"state"`
	Title string           `json:"title,omitempty"`
	Image string           `json:"image,omitempty"`
	Faces []FaceAnnotation `json:"faces,omitempty"`
}

// ModalState is the transient dialog state. It lives for one open/close cycle.
type ModalState struct {
	Stage    ModalStage `json:"stage"`
	Error    string     `json:"error,omitempty"`
	Title    string     `json:"title,omitempty"`
	Image    string     `json:"image,omitempty"`
	FaceURLs []string   `json:"faceUrls,omitempty"`
}

// Controller drives the annotation flow for one document: it owns the loaded
// record, the main view and the modal state. It is not safe for concurrent use;
// callers serialise actions.
type Controller struct {
	documentID string
	store      Store
	detector   detection.Client
	logger     *zap.Logger

	record Record
	main   MainView
	modal  ModalState
}

// NewController builds a controller with an empty main view and a closed modal.
// Call Initialize to load the persisted record.
func NewController(documentID string, store Store, detector detection.Client, logger *zap.Logger) *Controller {
	return &Controller{
		documentID: documentID,
		store:      store,
		detector:   detector,
		logger:     logger.Named("annotation_controller"),
		main:       MainView{State: MainEmpty},
		modal:      ModalState{Stage: ModalClosed},
	}
}

// Initialize loads the persisted record and derives the main view from it.
// A missing or partial record yields the empty view.
func (c *Controller) Initialize(ctx context.Context) error {
	record, err := c.store.Load(ctx)
	if err != nil {
		wrapped := logging.NewOperationError(ctx, "annotation.initialize", c.documentID, err)
		logging.WithOperation(ctx, c.logger, "annotation.initialize", c.documentID).Error("failed to load annotation", zap.Error(wrapped))
		return wrapped
	}

	if !record.Populated() {
		c.record = Record{}
		c.main = MainView{State: MainEmpty}
		return nil
	}
	c.record = record
	c.showRecord(record)
	return nil
}

// OpenModal shows the dialog awaiting an image and drops any stale transient state.
func (c *Controller) OpenModal() {
	c.modal = ModalState{Stage: ModalAwaitingImage}
}

// CloseModal hides the dialog from any stage. The persisted record is untouched.
func (c *Controller) CloseModal() {
	c.modal = ModalState{Stage: ModalClosed}
}

// SubmitImage runs detection for path. A failed detection is not an error: it
// sets the modal error message and keeps the modal awaiting an image.
func (c *Controller) SubmitImage(ctx context.Context, title, path string) error {
	if c.modal.Stage != ModalAwaitingImage {
		return ErrInvalidState
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(path) == "" {
		return ErrMissingField
	}

	c.modal.Error = ""

	result, err := c.detector.Detect(ctx, path)
	if err == nil && (result == nil || result.OriginalImage == "") {
		err = errNoOriginalImage
	}
	if err != nil {
		logging.WithOperation(ctx, c.logger, "annotation.submit_image", c.documentID).
			Warn("face detection failed", zap.Error(err), zap.String("image_path", path))
		c.modal.Error = ImageReadError
		return nil
	}

	faces := make([]string, len(result.Faces))
	copy(faces, result.Faces)
	c.modal = ModalState{
		Stage:    ModalAwaitingCaptions,
		Title:    title,
		Image:    result.OriginalImage,
		FaceURLs: faces,
	}
	return nil
}

// SaveCaptions pairs captions[i] with the i-th detected face, persists the
// resulting record and closes the modal. On a store failure nothing changes.
func (c *Controller) SaveCaptions(ctx context.Context, captions []string) error {
	if c.modal.Stage != ModalAwaitingCaptions {
		return ErrInvalidState
	}
	if len(captions) != len(c.modal.FaceURLs) {
		return ErrCaptionCount
	}

	record := Record{
		Title:         c.modal.Title,
		OriginalImage: c.modal.Image,
		Faces:         make([]FaceAnnotation, 0, len(captions)),
	}
	for i, url := range c.modal.FaceURLs {
		if strings.TrimSpace(captions[i]) == "" {
			return ErrMissingCaption
		}
		record.Faces = append(record.Faces, FaceAnnotation{URL: url, Caption: captions[i]})
	}

	if err := c.store.Save(ctx, record); err != nil {
		wrapped := logging.NewOperationError(ctx, "annotation.save_captions", c.documentID, err)
		logging.WithOperation(ctx, c.logger, "annotation.save_captions", c.documentID).Error("failed to persist annotation", zap.Error(wrapped))
		return wrapped
	}

	c.record = record
	c.showRecord(record)
	c.modal = ModalState{Stage: ModalClosed}
	return nil
}

// Reset clears the persisted record and all transient state. There is no undo.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.store.Save(ctx, Record{}); err != nil {
		wrapped := logging.NewOperationError(ctx, "annotation.reset", c.documentID, err)
		logging.WithOperation(ctx, c.logger, "annotation.reset", c.documentID).Error("failed to clear annotation", zap.Error(wrapped))
		return wrapped
	}

	c.record = Record{}
	c.main = MainView{State: MainEmpty}
	c.modal = ModalState{Stage: ModalClosed}
	return nil
}

// Main returns a copy of the main view.
func (c *Controller) Main() MainView {
	view := c.main
	if view.Faces != nil {
		view.Faces = append([]FaceAnnotation(nil), view.Faces...)
	}
	return view
}

// Modal returns a copy of the modal state.
func (c *Controller) Modal() ModalState {
	modal := c.modal
	if modal.FaceURLs != nil {
		modal.FaceURLs = append([]string(nil), modal.FaceURLs...)
	}
	return modal
}

// ModalOpen reports whether the dialog is in any open stage.
func (c *Controller) ModalOpen() bool {
	return c.modal.Stage != ModalClosed
}

func (c *Controller) showRecord(record Record) {
	faces := make([]FaceAnnotation, len(record.Faces))
	copy(faces, record.Faces)
	c.main = MainView{
		State: MainPopulated,
		Title: record.Title,
		Image: record.OriginalImage,
		Faces: faces,
	}
}
