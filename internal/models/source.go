package models

import (
	"time"
)

// SourceFile is one file of a corpus. It is immutable once loaded.
type SourceFile struct {
	ID          string    `bson:"fileId" json:"fileId"`
	CorpusID    string    `bson:"corpusId" json:"corpusId"`
	Name        string    `bson:"name" json:"name"`
	Path        string    `bson:"path" json:"path"`
	Language    string    `bson:"language" json:"language"`
	Raw         string    `bson:"raw" json:"raw"`
	Size        int64     `bson:"size" json:"size"`
	ExternalID  string    `bson:"externalId,omitempty" json:"externalId,omitempty"`
	DecodeError string    `bson:"decodeError,omitempty" json:"decodeError,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// Readable reports whether the file was read and decoded without error.
func (f *SourceFile) Readable() bool {
	return f.DecodeError == ""
}

// Submission represents an uploaded source file arriving on the Redis stream
type Submission struct {
	CorpusID   string `json:"corpusId"`
	Name       string `json:"name"`
	SourceCode string `json:"sourceCode"`
	Encoding   string `json:"encoding"`
	ExternalID string `json:"externalId"`
	Uploader   string `json:"uploader"`
}
