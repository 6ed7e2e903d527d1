// Package block implements the document block model: leaf extraction from
// the nested tree produced by the extraction backend, vertical merging of
// adjacent blocks, and translation-unit handling.
package block

// Ancestor 祖先节点信息，父节点在前
type Ancestor struct {
	Type string    `json:"type"`
	BBox []float64 `json:"bbox,omitempty"`
}

// Leaf 叶子块，流水线的基本处理单元
type Leaf struct {
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	BBox      []float64  `json:"bbox,omitempty"`
	ImagePath string     `json:"image_path,omitempty"`
	HTML      string     `json:"html,omitempty"`
	Ancestors []Ancestor `json:"ancestors,omitempty"`
	// PageNumber is 1-based; PageSize is [width, height] in points.
	PageNumber int       `json:"page_number,omitempty"`
	PageSize   []float64 `json:"page_size,omitempty"`
}

// AncestorType returns the type of the i-th ancestor (0 = immediate parent)
// or "" when the chain is shorter.
func (l *Leaf) AncestorType(i int) string {
	if i < 0 || i >= len(l.Ancestors) {
		return ""
	}
	return l.Ancestors[i].Type
}

// ParentBBox returns the immediate parent's bbox, or nil.
func (l *Leaf) ParentBBox() []float64 {
	if len(l.Ancestors) == 0 {
		return nil
	}
	return l.Ancestors[0].BBox
}

// PipeErrorCode 错误代码枚举
type PipeErrorCode string

const (
	ErrSplitFailed     PipeErrorCode = "SPLIT_FAILED"
	ErrExtractFailed   PipeErrorCode = "EXTRACT_FAILED"
	ErrInvalidPage     PipeErrorCode = "INVALID_PAGE"
	ErrTranslateFailed PipeErrorCode = "TRANSLATE_FAILED"
	ErrCensorFailed    PipeErrorCode = "CENSOR_FAILED"
	ErrRenderFailed    PipeErrorCode = "RENDER_FAILED"
	ErrConvertFailed   PipeErrorCode = "CONVERT_FAILED"
	ErrMergeFailed     PipeErrorCode = "MERGE_FAILED"
)

// PipeError 流水线处理错误
type PipeError struct {
	Code    PipeErrorCode `json:"code"`
	Message string        `json:"message"`
	Details string        `json:"details,omitempty"`
	Page    int           `json:"page,omitempty"`
	Cause   error         `json:"-"`
}

// Error implements the error interface for PipeError
func (e *PipeError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *PipeError) Unwrap() error {
	return e.Cause
}

// NewPipeError creates a new PipeError with the given code, message, and optional cause
func NewPipeError(code PipeErrorCode, message string, cause error) *PipeError {
	return &PipeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPipeErrorWithDetails creates a new PipeError with details
func NewPipeErrorWithDetails(code PipeErrorCode, message, details string, cause error) *PipeError {
	return &PipeError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPipeErrorWithPage creates a new PipeError with page information
func NewPipeErrorWithPage(code PipeErrorCode, message string, page int, cause error) *PipeError {
	return &PipeError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// IsValidBBox reports whether v is a 4-element box with non-negative
// coordinates.
func IsValidBBox(v []float64) bool {
	if len(v) != 4 {
		return false
	}
	for _, x := range v {
		if x < 0 {
			return false
		}
	}
	return true
}
