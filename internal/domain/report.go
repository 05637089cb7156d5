package domain

import "time"

// ReportFile is the metadata of an uploaded organization document.
type ReportFile struct {
	ID         string
	Name       string
	Size       string
	URL        string
	UploadedBy string
	CreatedAt  time.Time
}
