package codec

import (
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// DescribeEXIF summarizes the notable tags in a raw EXIF payload, for
// verbose per-file reporting. Returns "" when there is nothing to say.
func DescribeEXIF(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return ""
	}

	var model string
	hasGPS := false
	for _, tag := range tags {
		if tag.TagName == "Model" && model == "" {
			if s, ok := tag.Value.(string); ok {
				model = strings.TrimSpace(s)
			}
		}
		if strings.HasPrefix(tag.TagName, "GPS") || strings.Contains(tag.IfdPath, "GPS") {
			hasGPS = true
		}
	}

	var parts []string
	if model != "" {
		parts = append(parts, "camera "+model)
	}
	if hasGPS {
		parts = append(parts, "GPS data")
	}
	if len(parts) == 0 {
		return "EXIF preserved"
	}
	return "EXIF preserved (" + strings.Join(parts, ", ") + ")"
}
