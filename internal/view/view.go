// Package view turns annotation state into the declarative component tree the
// host renders.
package view

import (
	"fmt"
	"strconv"

	"github.com/example/face-detect/internal/annotation"
)

// Node types understood by the host renderer.
const (
	TypeFragment  = "fragment"
	TypeText      = "text"
	TypeImage     = "image"
	TypeButton    = "button"
	TypeForm      = "form"
	TypeTextField = "textField"
	TypeTable     = "table"
	TypeRow       = "row"
	TypeCell      = "cell"
	TypeModal     = "modal"
)

// Actions a button or form triggers. Hosts map them onto the HTTP routes.
const (
	ActionOpenModal    = "openModal"
	ActionCloseModal   = "closeModal"
	ActionSubmitImage  = "submitImage"
	ActionSaveCaptions = "saveCaptions"
	ActionReset        = "reset"
)

const (
	heading            = "Face Detect"
	captionPlaceholder = "Add name and details"
)

// Node is one element of the view tree.
type Node struct {
	Type     string            `json:"type"`
	Props    map[string]string `json:"props,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// CaptionField names the form field holding the caption of face i.
func CaptionField(i int) string {
	return "image" + strconv.Itoa(i)
}

// Render builds the tree for the main view and, when open, the modal.
func Render(main annotation.MainView, modal annotation.ModalState) Node {
	root := Node{Type: TypeFragment}
	if main.State == annotation.MainPopulated {
		root.Children = append(root.Children, populated(main)...)
	} else {
		root.Children = append(root.Children,
			text(fmt.Sprintf("**%s**", heading), "markdown"),
			button("Select Image", ActionOpenModal),
		)
	}
	if modal.Stage != annotation.ModalClosed {
		root.Children = append(root.Children, dialog(modal))
	}
	return root
}

func populated(main annotation.MainView) []Node {
	table := Node{Type: TypeTable}
	for _, face := range main.Faces {
		table.Children = append(table.Children, Node{Type: TypeRow, Children: []Node{
			{Type: TypeCell, Children: []Node{image(face.URL, face.URL)}},
			{Type: TypeCell, Children: []Node{text(face.Caption, "")}},
		}})
	}
	return []Node{
		text(fmt.Sprintf("**%s**", main.Title), "markdown"),
		image(main.Image, ""),
		button("Reset", ActionReset),
		table,
	}
}

func dialog(modal annotation.ModalState) Node {
	node := Node{
		Type:  TypeModal,
		Props: map[string]string{"header": heading, "onClose": ActionCloseModal},
	}

	if modal.Stage == annotation.ModalAwaitingCaptions {
		table := Node{Type: TypeTable}
		for i, url := range modal.FaceURLs {
			table.Children = append(table.Children, Node{Type: TypeRow, Children: []Node{
				{Type: TypeCell, Children: []Node{image(url, url)}},
				{Type: TypeCell, Children: []Node{{
					Type: TypeTextField,
					Props: map[string]string{
						"name":        CaptionField(i),
						"label":       "",
						"isRequired":  "true",
						"placeholder": captionPlaceholder,
					},
				}}},
			}})
		}
		node.Children = []Node{form("Save", ActionSaveCaptions, table)}
		return node
	}

	fields := []Node{
		textField("imageTitle", "Title"),
		textField("imagePath", "Image Path"),
	}
	if modal.Error != "" {
		fields = append(fields, text(modal.Error, ""))
	}
	node.Children = []Node{form("Process", ActionSubmitImage, fields...)}
	return node
}

func text(content, format string) Node {
	props := map[string]string{"content": content}
	if format != "" {
		props["format"] = format
	}
	return Node{Type: TypeText, Props: props}
}

func image(src, alt string) Node {
	return Node{Type: TypeImage, Props: map[string]string{"src": src, "alt": alt}}
}

func button(label, action string) Node {
	return Node{Type: TypeButton, Props: map[string]string{"text": label, "onClick": action}}
}

func textField(name, label string) Node {
	return Node{Type: TypeTextField, Props: map[string]string{"name": name, "label": label, "isRequired": "true"}}
}

func form(submitText, action string, children ...Node) Node {
	return Node{
		Type:     TypeForm,
		Props:    map[string]string{"submitButtonText": submitText, "onSubmit": action},
		Children: children,
	}
}
