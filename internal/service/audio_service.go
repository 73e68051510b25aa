package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"lingua_exam_backend/internal/util"

	"go.uber.org/zap"
)

// AudioService stores speaking recordings and serves exam prompt audio. It sits
// on the storage provider; the session runtime only ever sees resulting object
// paths.
type AudioService struct {
	Storage *StorageService
	Logger  *zap.Logger

	MaxUploadBytes int64
}

func NewAudioService(storage *StorageService, logger *zap.Logger, maxUploadMB int) *AudioService {
	return &AudioService{
		Storage:        storage,
		Logger:         logger,
		MaxUploadBytes: int64(maxUploadMB) << 20,
	}
}

func allowedAudioExt(ext string) bool {
	for _, e := range util.AllowedAudioExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// SaveRecording persists one speaking answer blob and returns its object path.
// The blob is spooled to a temp file first so ffprobe can report the duration;
// probe failures are logged and ignored.
func (s *AudioService) SaveRecording(ctx context.Context, attemptID string, questionIndex int, header *multipart.FileHeader) (string, error) {
	if header.Size > s.MaxUploadBytes {
		return "", fmt.Errorf("recording of %d bytes exceeds the %d byte limit", header.Size, s.MaxUploadBytes)
	}
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".webm"
	}
	if !allowedAudioExt(ext) {
		return "", fmt.Errorf("audio extension %q not accepted", ext)
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "speaking-*"+ext)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	if info, err := util.ProbeAudio(tmp.Name()); err != nil {
		s.Logger.Warn("audio probe failed",
			zap.String("attemptId", attemptID), zap.Int("question", questionIndex), zap.Error(err))
	} else {
		s.Logger.Info("speaking recording received",
			zap.String("attemptId", attemptID),
			zap.Int("question", questionIndex),
			zap.Float64("durationSec", info.Duration),
			zap.String("format", info.Format))
	}

	objectName := fmt.Sprintf("speaking/%s/q%d%s", attemptID, questionIndex, ext)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = util.MimeWebmAudio
	}

	f, err := os.Open(tmp.Name())
	if err != nil {
		return "", err
	}
	defer f.Close()

	// the object name, not the provider URL, is what submissions reference
	if _, err := s.Storage.Upload(ctx, objectName, f, size, contentType); err != nil {
		return "", err
	}
	return objectName, nil
}

// FetchBase64 returns an audio object as a base64 payload for in-page playback.
func (s *AudioService) FetchBase64(ctx context.Context, audioPath string) (string, error) {
	// object names never traverse upward
	clean := filepath.ToSlash(filepath.Clean("/" + audioPath))[1:]

	rc, err := s.Storage.Download(ctx, clean)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
