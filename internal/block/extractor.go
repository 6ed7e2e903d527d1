package block

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// pageContext carries the page metadata inherited from the nearest ancestor
// that declared its own page_idx and page_size.
type pageContext struct {
	pageNumber int
	pageSize   []float64
}

// ExtractLeaves walks the nested document tree depth-first and returns the
// flat list of leaf blocks. A node is a leaf when none of its child values
// are mappings or sequences containing mappings. Leaf nodes carrying their
// own page_idx become block_page blocks spanning the whole page; a page
// without a usable page_size is a hard error.
func ExtractLeaves(tree any) ([]Leaf, error) {
	var out []Leaf
	if err := walkTree(tree, pageContext{}, nil, &out); err != nil {
		return nil, err
	}
	out, err := ensurePageBlocks(tree, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ensurePageBlocks guarantees one block_page per entry of the top-level
// pdf_info page list. Blank pages already produced theirs during the walk;
// the rest are synthesized here so a page with zero content blocks still
// renders.
func ensurePageBlocks(tree any, leaves []Leaf) ([]Leaf, error) {
	root, ok := tree.(map[string]any)
	if !ok {
		return leaves, nil
	}
	pages, ok := root["pdf_info"].([]any)
	if !ok {
		return leaves, nil
	}

	seen := make(map[int]bool)
	for _, l := range leaves {
		if l.Type == "block_page" {
			seen[l.PageNumber] = true
		}
	}

	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		idx, hasIdx := toPageIdx(page["page_idx"])
		if !hasIdx || seen[idx+1] {
			continue
		}
		ps := toFloats(page["page_size"])
		leaf, err := synthesizePageBlock(idx, pageContext{pageNumber: idx + 1, pageSize: ps})
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
		seen[idx+1] = true
	}
	return leaves, nil
}

func walkTree(obj any, ctx pageContext, path []Ancestor, out *[]Leaf) error {
	switch node := obj.(type) {
	case map[string]any:
		return walkMap(node, ctx, path, out)
	case []any:
		for _, item := range node {
			if err := walkTree(item, ctx, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkMap(node map[string]any, ctx pageContext, path []Ancestor, out *[]Leaf) error {
	nodeType, hasType := node["type"].(string)
	nodeBBox := toFloats(node["bbox"])
	if !IsValidBBox(nodeBBox) {
		nodeBBox = nil
	}

	ownPageIdx, hasPageIdx := toPageIdx(node["page_idx"])
	ownPageSize := toFloats(node["page_size"])
	if hasPageIdx && len(ownPageSize) >= 2 {
		ctx = pageContext{pageNumber: ownPageIdx + 1, pageSize: ownPageSize[:2]}
	}

	childPath := path
	if hasType {
		childPath = append(append([]Ancestor(nil), path...), Ancestor{Type: nodeType, BBox: nodeBBox})
	}

	if isLeafNode(node) {
		if hasPageIdx {
			leaf, err := synthesizePageBlock(ownPageIdx, ctx)
			if err != nil {
				return err
			}
			*out = append(*out, leaf)
			return nil
		}
		if hasType && nodeBBox != nil {
			*out = append(*out, Leaf{
				Type:       nodeType,
				Content:    stringField(node, "content"),
				BBox:       nodeBBox,
				ImagePath:  stringField(node, "image_path"),
				HTML:       stringField(node, "html"),
				Ancestors:  reverseAncestors(path),
				PageNumber: ctx.pageNumber,
				PageSize:   ctx.pageSize,
			})
		}
		// leaf without type or valid bbox is discarded
		return nil
	}

	for _, key := range sortedKeys(node) {
		value := node[key]
		switch value.(type) {
		case map[string]any, []any:
			if err := walkTree(value, ctx, childPath, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// synthesizePageBlock builds the block_page leaf for a page container.
// Every page gets exactly one of these even when it holds no content blocks.
func synthesizePageBlock(pageIdx int, ctx pageContext) (Leaf, error) {
	ps := ctx.pageSize
	if len(ps) < 2 || ps[0] < 0 || ps[1] < 0 {
		return Leaf{}, NewPipeErrorWithPage(ErrInvalidPage,
			"page is missing a valid page_size", pageIdx+1, nil)
	}
	return Leaf{
		Type: "block_page",
		BBox: []float64{0, 0, ps[0], ps[1]},
		Ancestors: []Ancestor{
			{Type: "block_page"},
			{Type: "block_page"},
			{Type: "block_page"},
		},
		PageNumber: pageIdx + 1,
		PageSize:   []float64{ps[0], ps[1]},
	}, nil
}

// isLeafNode reports whether none of the node's child values are mappings or
// sequences containing mappings or sequences.
func isLeafNode(node map[string]any) bool {
	for _, value := range node {
		switch v := value.(type) {
		case map[string]any:
			return false
		case []any:
			for _, item := range v {
				switch item.(type) {
				case map[string]any, []any:
					return false
				}
			}
		}
	}
	return true
}

// reverseAncestors flips a root-first path into the parent-first chain
// stored on the leaf.
func reverseAncestors(path []Ancestor) []Ancestor {
	if len(path) == 0 {
		return nil
	}
	out := make([]Ancestor, len(path))
	for i, a := range path {
		out[len(path)-1-i] = a
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func toFloats(v any) []float64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func toPageIdx(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ExtractFile reads the extraction backend's middle JSON for one chunk and
// writes `{stem}_leaf_blocks.json` next to it. Behavior depends on pdfType:
// txt and ocr drop the intermediate para_blocks before extraction and merge
// vertically adjacent blocks afterwards; vlm keeps the full structure and
// skips the merge; anything else is treated like vlm with a warning.
// Returns the output path. An existing output file is reused untouched.
func ExtractFile(middlePath, pdfType string) (string, error) {
	stem := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(middlePath), ".json"), "_middle")
	outputPath := filepath.Join(filepath.Dir(middlePath), stem+"_leaf_blocks.json")

	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("leaf blocks already extracted, skipping", logger.String("path", outputPath))
		return outputPath, nil
	}

	data, err := os.ReadFile(middlePath)
	if err != nil {
		return "", NewPipeError(ErrExtractFailed, "failed to read middle json", err)
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return "", NewPipeError(ErrExtractFailed, "middle json is not valid JSON", err)
	}

	switch pdfType {
	case "txt", "ocr":
		stripParaBlocks(tree)
	case "vlm":
	default:
		logger.Warn("unexpected pdf type, treating as vlm",
			logger.String("pdf_type", pdfType), logger.String("path", middlePath))
	}

	leaves, err := ExtractLeaves(tree)
	if err != nil {
		return "", err
	}
	if len(leaves) == 0 {
		return "", NewPipeError(ErrExtractFailed,
			fmt.Sprintf("no leaf blocks extracted from %s", middlePath), nil)
	}

	if pdfType == "txt" || pdfType == "ocr" {
		leaves = Merge(leaves)
	}

	encoded, err := json.MarshalIndent(leaves, "", "  ")
	if err != nil {
		return "", NewPipeError(ErrExtractFailed, "failed to encode leaf blocks", err)
	}
	if err := os.WriteFile(outputPath, encoded, 0644); err != nil {
		return "", NewPipeError(ErrExtractFailed, "failed to write leaf blocks", err)
	}

	logger.Info("leaf blocks extracted",
		logger.String("path", outputPath), logger.Int("blocks", len(leaves)))
	return outputPath, nil
}

// stripParaBlocks removes the para_blocks field from every page entry of
// pdf_info. txt and ocr extraction keep their paragraph-level intermediates
// there and they must not reach leaf extraction.
func stripParaBlocks(tree any) {
	root, ok := tree.(map[string]any)
	if !ok {
		return
	}
	pages, ok := root["pdf_info"].([]any)
	if !ok {
		return
	}
	for _, p := range pages {
		if page, ok := p.(map[string]any); ok {
			delete(page, "para_blocks")
		}
	}
}
