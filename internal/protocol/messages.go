package protocol

import "time"

// Article is the page content extracted by the browser extension.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// SpeechConfig carries per-request synthesis overrides. Zero values mean "use the host default".
type SpeechConfig struct {
	LengthScale      float64 `json:"lengthScale,omitempty"`
	SentenceSilence  float64 `json:"sentenceSilence,omitempty"`
	ParagraphSilence float64 `json:"paragraphSilence,omitempty"`
	ChunkSize        int     `json:"chunkSize,omitempty"`
}

// Request is one message received from the extension.
type Request struct {
	Action  string       `json:"action"`
	Article Article      `json:"article"`
	Mode    string       `json:"mode,omitempty"`
	Config  SpeechConfig `json:"config"`
}

// Response is one message sent back to the extension. Status selects which fields are set.
type Response struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message,omitempty"`

	AudioPath string `json:"audioPath,omitempty"`
	Duration  string `json:"duration,omitempty"`
	WordCount int    `json:"wordCount,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Mode      string `json:"mode,omitempty"`
	FileSize  string `json:"fileSize,omitempty"`

	Format      string `json:"format,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	SampleWidth int    `json:"sampleWidth,omitempty"`
	Paragraphs  int    `json:"paragraphs,omitempty"`

	Index       int    `json:"index,omitempty"`
	Data        string `json:"data,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	TotalBytes  int    `json:"totalBytes,omitempty"`
}

// Terminal reports whether the status ends a request's response sequence.
func (r Response) Terminal() bool {
	switch r.Status {
	case StatusSuccess, StatusError, StatusStreamComplete, StatusDownloadComplete:
		return true
	}
	return false
}

// StatusEvent mirrors a response onto the bus without audio payloads.
type StatusEvent struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Index     int       `json:"index,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ActionGenerate = "generate"
	ActionStream   = "stream"
	ActionDownload = "download"
)

const (
	ModeFull  = "full"
	ModeQuick = "quick"
	ModeDeep  = "deep"
)

const (
	StatusProgress         = "progress"
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusAudioFormat      = "audioFormat"
	StatusAudioChunk       = "audioChunk"
	StatusStreamComplete   = "streamComplete"
	StatusDownloadComplete = "downloadComplete"
)
