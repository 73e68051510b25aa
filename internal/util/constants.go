package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeAudio       = "audio/"
	MimeWebmAudio   = "audio/webm"
	MimeOctetStream = "application/octet-stream"
)

var (
	AllowedAudioExtensions = []string{".webm", ".ogg", ".mp3", ".wav", ".m4a"}
)
