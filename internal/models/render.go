package models

import "unicode"

// Position is a placement on the tissue grid; Z is the matrix level.
type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// RenderType tells which of the two render kinds carried a type tag.
type RenderType struct {
	CellType     CellType     `json:"cellType"`
	CytokineType CytokineType `json:"cytokineType"`
	IsCytokine   bool         `json:"isCytokine"`
	Set          bool         `json:"set"`
}

// Renderable is one ephemeral entity update from the render channel.
type Renderable struct {
	ID       string     `json:"id"`
	Visible  bool       `json:"visible"`
	Position Position   `json:"position"`
	Type     RenderType `json:"type"`
}

// Kind returns the textual prefix of the entity id, e.g. "Nanobot" for
// "Nanobot00012345" or "Cytokine" for "Cytokine3-10-4".
func Kind(id string) string {
	for i, r := range id {
		if !unicode.IsLetter(r) {
			return id[:i]
		}
	}
	return id
}
