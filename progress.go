package sqpack

// ProgressEvent represents a progress update while building an archive.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed in the current stage.
	BytesDone uint64

	// BytesTotal is the total bytes for the current stage.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of entries completed.
	FilesDone int

	// FilesTotal is the total number of entries.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageEnumerating indicates a source directory is being walked.
	StageEnumerating ProgressStage = iota

	// StageCompressing indicates source files are being packed into entries.
	StageCompressing

	// StageLayout indicates entries are being assigned to data files.
	StageLayout

	// StageWritingData indicates entries are being written to data files.
	StageWritingData

	// StageWritingIndex indicates the index files are being written.
	StageWritingIndex
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageCompressing:
		return "compressing"
	case StageLayout:
		return "layout"
	case StageWritingData:
		return "writing data"
	case StageWritingIndex:
		return "writing index"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
