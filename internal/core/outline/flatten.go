package outline

import (
	"strconv"

	"github.com/google/uuid"

	"studyvault/internal/core/textutil"
	"studyvault/internal/models"
)

const (
	// MaxDepth bounds the flattened tree; the synthesized root is depth 0.
	MaxDepth = 3
	// MaxNodes caps the total node count per material, root included.
	MaxNodes = 200
)

type frame struct {
	item       models.OutlineItem
	parentID   string
	parentPath string
	depth      int
	sibling    int
}

// Flatten converts the analyzer's tree into persistable rows: one synthesized
// root for the whole document, then a depth-first walk of the children with
// dotted ordinal paths. Nodes beyond MaxDepth or MaxNodes are silently
// omitted; this is a best-effort structural summary.
func Flatten(materialID string, analysis *models.DocumentAnalysis) []models.OutlineNode {
	rootID := uuid.NewString()
	root := models.OutlineNode{
		ID:         rootID,
		MaterialID: materialID,
		NodeType:   models.NodeSection,
		Title:      textutil.NormalizeText(analysis.Title),
		Summary:    textutil.NormalizeText(analysis.Summary),
		Depth:      0,
		Path:       "0",
	}
	nodes := []models.OutlineNode{root}

	// Explicit stack, children pushed in reverse so siblings pop in order.
	stack := make([]frame, 0, len(analysis.Outline))
	for i := len(analysis.Outline) - 1; i >= 0; i-- {
		stack = append(stack, frame{
			item:       analysis.Outline[i],
			parentID:   rootID,
			parentPath: "0",
			depth:      1,
			sibling:    i,
		})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > MaxDepth {
			continue
		}
		if len(nodes) >= MaxNodes {
			break
		}

		id := uuid.NewString()
		parentID := f.parentID
		path := f.parentPath + "." + strconv.Itoa(f.sibling+1)
		nodes = append(nodes, models.OutlineNode{
			ID:         id,
			MaterialID: materialID,
			ParentID:   &parentID,
			NodeType:   nodeType(f.item.NodeType, f.depth),
			Title:      textutil.NormalizeText(f.item.Title),
			Summary:    textutil.NormalizeText(f.item.Summary),
			Keywords:   normalizeAll(f.item.Keywords),
			OrderIndex: f.sibling,
			Depth:      f.depth,
			Path:       path,
			PageStart:  f.item.PageStart,
			LineStart:  f.item.LineStart,
		})

		for i := len(f.item.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				item:       f.item.Children[i],
				parentID:   id,
				parentPath: path,
				depth:      f.depth + 1,
				sibling:    i,
			})
		}
	}
	return nodes
}

func nodeType(declared string, depth int) string {
	switch declared {
	case models.NodeSection, models.NodeTopic:
		return declared
	}
	if depth >= 2 {
		return models.NodeTopic
	}
	return models.NodeSection
}

func normalizeAll(kw []string) []string {
	out := make([]string, 0, len(kw))
	for _, k := range kw {
		if n := textutil.NormalizeText(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}
