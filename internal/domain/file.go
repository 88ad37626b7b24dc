package domain

// FileRef is the metadata record returned by the external file service.
// The pipeline treats files as read-only lookups by id; the snapshot stored
// on a run is whatever the file service returned at run-creation time.
type FileRef struct {
	FileID        string `json:"file_id"`
	S3ObjectKey   string `json:"s3_object_key"`
	FileURL       string `json:"file_url"`
	FileName      string `json:"file_name"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
	UploaderID    string `json:"uploader_id"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}
