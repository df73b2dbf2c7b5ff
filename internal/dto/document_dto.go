package dto

type IndexDocumentRequest struct {
	// DocumentId re-indexes an existing document when set.
	DocumentId   string `json:"document_id" validate:"omitempty,uuid"`
	CollectionId string `json:"collection_id" validate:"omitempty,uuid"`
	Filename     string `json:"filename" validate:"required,max=255"`
	Content      string `json:"content" validate:"required"`
}

type IndexDocumentResponse struct {
	DocumentId string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// DocumentChangedRequest lets the upload pipeline report changes it made
// to the chunk table directly.
type DocumentChangedRequest struct {
	DocumentId   string `json:"document_id" validate:"required,uuid"`
	CollectionId string `json:"collection_id" validate:"omitempty,uuid"`
	Action       string `json:"action" validate:"required,oneof=indexed updated deleted"`
}
