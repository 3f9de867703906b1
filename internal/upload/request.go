package upload

import (
	"github.com/fpang/mentor-metrics-cli/internal/filehandler"
)

// FromVideo builds a Request for a loaded local file. A nil file yields a
// nil Request, which Upload reports as NO_FILE.
func FromVideo(vf *filehandler.VideoFile) *Request {
	if vf == nil {
		return nil
	}
	return &Request{
		Name:     vf.Name,
		MIMEType: vf.MIMEType,
		Size:     vf.Size,
		Open:     vf.Open,
	}
}
