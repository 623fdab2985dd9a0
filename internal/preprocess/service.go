package preprocess

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/RishiKendai/twinscan/internal/loader"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/src-d/enry/v2"
)

// ErrInvalidSubmission marks submissions that can never be stored
var ErrInvalidSubmission = errors.New("invalid submission")

type SourceWriter interface {
	UpsertSource(ctx context.Context, file *models.SourceFile) error
}

// Uploader registers files with the remote backend
type Uploader interface {
	Upload(ctx context.Context, files []*models.SourceFile) (map[string]string, error)
}

type Service struct {
	decoder     *normalize.Decoder
	sources     SourceWriter
	uploader    Uploader
	maxFileSize uint64
}

func NewService(decoder *normalize.Decoder, sources SourceWriter, uploader Uploader, maxFileSize uint64) *Service {
	return &Service{
		decoder:     decoder,
		sources:     sources,
		uploader:    uploader,
		maxFileSize: maxFileSize,
	}
}

// processes a submission by decoding it and storing it as a source file
func (s *Service) ProcessSubmission(ctx context.Context, submission *models.Submission) error {
	file, err := s.BuildSource(submission)
	if err != nil {
		return err
	}

	if s.uploader != nil && file.Readable() {
		ids, err := s.uploader.Upload(ctx, []*models.SourceFile{file})
		if err != nil {
			log.Warn().Err(err).Str("file", file.Name).Msg("Failed to register file with remote backend")
		} else {
			file.ExternalID = ids[file.Name]
		}
	}

	if err := s.sources.UpsertSource(ctx, file); err != nil {
		return fmt.Errorf("failed to store source file: %w", err)
	}

	log.Debug().
		Str("corpusId", file.CorpusID).
		Str("file", file.Name).
		Str("language", file.Language).
		Bool("readable", file.Readable()).
		Msg("Submission stored")

	return nil
}

// BuildSource turns a submission into a source file. Content that cannot be
// decoded still produces a file, with empty text and DecodeError set.
func (s *Service) BuildSource(submission *models.Submission) (*models.SourceFile, error) {
	if strings.TrimSpace(submission.CorpusID) == "" {
		return nil, fmt.Errorf("%w: corpusId is required", ErrInvalidSubmission)
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(submission.Name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSubmission)
	}

	data, err := payload(submission)
	if err != nil {
		return nil, err
	}

	file := &models.SourceFile{
		CorpusID:   submission.CorpusID,
		Name:       name,
		Path:       submission.Name,
		Size:       int64(len(data)),
		ExternalID: submission.ExternalID,
		CreatedAt:  time.Now(),
	}

	switch {
	case s.maxFileSize > 0 && uint64(len(data)) > s.maxFileSize:
		file.DecodeError = fmt.Sprintf("%v: %s > %s", loader.ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(s.maxFileSize))
	default:
		file.Language = enry.GetLanguage(name, data)
		text, err := s.decoder.Decode(data)
		if err != nil {
			file.DecodeError = err.Error()
		} else {
			file.Raw = text
		}
	}
	file.ID = loader.Identity(file.Name, file.Raw)

	return file, nil
}

func payload(submission *models.Submission) ([]byte, error) {
	switch strings.ToLower(submission.Encoding) {
	case "", "text", "utf-8", "utf8":
		return []byte(submission.SourceCode), nil
	case "base64":
		data, err := base64.StdEncoding.DecodeString(submission.SourceCode)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidSubmission, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidSubmission, submission.Encoding)
}
