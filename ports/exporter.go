package ports

import (
	"io"

	"pivotdesk/domain/pivot"
)

// Exporter writes a (normalized) pivot grid to an output document
type Exporter interface {
	ContentType() string
	FileExtension() string
	Export(w io.Writer, sheet string, columns []string, rows []pivot.ResultRow) error
}
