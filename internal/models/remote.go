package models

// UploadResponse is returned by the remote backend after a batch upload
type UploadResponse struct {
	Results []UploadedFile `json:"results"`
}

// UploadedFile maps an uploaded filename to the backend's file identifier
type UploadedFile struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id"`
}

// FilePair identifies a pair by backend file identifiers
type FilePair struct {
	MainFileID string `json:"main_file_id"`
	SubFileID  string `json:"sub_file_id"`
}

// ResultQuery asks the backend for the results of specific pairs
type ResultQuery struct {
	FileIDList []FilePair `json:"file_id_list"`
}

// ResultQueryResponse is the backend answer to a ResultQuery
type ResultQueryResponse struct {
	Success bool          `json:"success"`
	Results []PairVerdict `json:"results"`
}

// PairVerdict holds the backend's verdict for one pair
type PairVerdict struct {
	MainFileID string   `json:"main_file_id"`
	SubFileID  string   `json:"sub_file_id"`
	Similarity *float64 `json:"similarity,omitempty"`
	ResultURL  string   `json:"result_url"`
}

// RemoteError represents an error response from the remote backend
type RemoteError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
