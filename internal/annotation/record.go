package annotation

// FaceAnnotation pairs a detected face image with the caption a user gave it.
type FaceAnnotation struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// Record is the annotation persisted on a document. The zero value is the
// empty record ("no annotation yet").
type Record struct {
	Title         string           `json:"title,omitempty"`
	OriginalImage string           `json:"originalImage,omitempty"`
	Faces         []FaceAnnotation `json:"faces"`
}

// Populated reports whether every required field is set. Faces counts as set
// once present, even when detection found none.
func (r Record) Populated() bool {
	return r.Title != "" && r.OriginalImage != "" && r.Faces != nil
}
