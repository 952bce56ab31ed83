package view

import (
	"testing"

	"github.com/example/face-detect/internal/annotation"
)

func TestRenderEmpty(t *testing.T) {
	root := Render(annotation.MainView{State: annotation.MainEmpty}, annotation.ModalState{Stage: annotation.ModalClosed})

	if len(root.Children) != 2 {
		t.Fatalf("expected heading and button, got %d children", len(root.Children))
	}
	if got := root.Children[0].Props["content"]; got != "**Face Detect**" {
		t.Errorf("unexpected heading: %q", got)
	}
	if got := root.Children[1].Props["onClick"]; got != ActionOpenModal {
		t.Errorf("unexpected button action: %q", got)
	}
}

func TestRenderPopulated(t *testing.T) {
	main := annotation.MainView{
		State: annotation.MainPopulated,
		Title: "Team Photo",
		Image: "img://abc",
		Faces: []annotation.FaceAnnotation{{URL: "f1", Caption: "Alice"}, {URL: "f2", Caption: "Bob"}},
	}
	root := Render(main, annotation.ModalState{Stage: annotation.ModalClosed})

	if len(root.Children) != 4 {
		t.Fatalf("expected title, image, reset, table; got %d children", len(root.Children))
	}
	if got := root.Children[0].Props["content"]; got != "**Team Photo**" {
		t.Errorf("unexpected title: %q", got)
	}
	if got := root.Children[2].Props["onClick"]; got != ActionReset {
		t.Errorf("unexpected reset action: %q", got)
	}
	table := root.Children[3]
	if len(table.Children) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Children))
	}
	caption := table.Children[1].Children[1].Children[0]
	if caption.Props["content"] != "Bob" {
		t.Errorf("expected second row to caption Bob, got %q", caption.Props["content"])
	}
}

func TestRenderModalAwaitingImageWithError(t *testing.T) {
	modal := annotation.ModalState{Stage: annotation.ModalAwaitingImage, Error: annotation.ImageReadError}
	root := Render(annotation.MainView{State: annotation.MainEmpty}, modal)

	dialog := root.Children[len(root.Children)-1]
	if dialog.Type != TypeModal {
		t.Fatalf("expected modal node, got %s", dialog.Type)
	}
	form := dialog.Children[0]
	if form.Props["submitButtonText"] != "Process" {
		t.Errorf("unexpected submit text: %q", form.Props["submitButtonText"])
	}
	if len(form.Children) != 3 {
		t.Fatalf("expected two fields and the error text, got %d", len(form.Children))
	}
	if form.Children[2].Props["content"] != annotation.ImageReadError {
		t.Errorf("unexpected error text: %q", form.Children[2].Props["content"])
	}
}

func TestRenderModalAwaitingCaptions(t *testing.T) {
	modal := annotation.ModalState{
		Stage:    annotation.ModalAwaitingCaptions,
		FaceURLs: []string{"f1", "f2", "f3"},
	}
	root := Render(annotation.MainView{State: annotation.MainEmpty}, modal)

	form := root.Children[len(root.Children)-1].Children[0]
	if form.Props["submitButtonText"] != "Save" {
		t.Errorf("unexpected submit text: %q", form.Props["submitButtonText"])
	}
	rows := form.Children[0].Children
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		field := row.Children[1].Children[0]
		if field.Props["name"] != CaptionField(i) {
			t.Errorf("row %d: unexpected field name %q", i, field.Props["name"])
		}
		if field.Props["placeholder"] != "Add name and details" {
			t.Errorf("row %d: unexpected placeholder %q", i, field.Props["placeholder"])
		}
	}
}
