package study

import "strings"

// defaultImageMIME is the degradation target whenever a locator gives
// no usable type information.
const defaultImageMIME = "image/jpeg"

// documentMIME is fixed for document attachments regardless of locator form.
const documentMIME = "application/pdf"

// NormalizeImage classifies an image locator (data: URI, remote URL or
// bare base64 payload) and resolves its concrete content type. It never
// fails: absence of information degrades to image/jpeg.
func NormalizeImage(locator string) MediaRef {
	ref := MediaRef{Kind: MediaImage, Locator: locator, MIMEType: defaultImageMIME}

	if strings.HasPrefix(locator, "data:") {
		if mime := dataURIMime(locator); mime != "" {
			ref.MIMEType = mime
		}
		return ref
	}

	if isRemoteURL(locator) {
		ref.Remote = true
	}
	// Remote URLs and bare payloads alike: a recognizable extension
	// refines the type, anything else stays image/jpeg.
	if mime := extensionMime(locator); mime != "" {
		ref.MIMEType = mime
	}
	return ref
}

// NormalizeDocument classifies a document locator. Documents are always
// treated as PDF.
func NormalizeDocument(locator string) MediaRef {
	return MediaRef{
		Kind:     MediaDocument,
		Locator:  locator,
		Remote:   isRemoteURL(locator),
		MIMEType: documentMIME,
	}
}

func isRemoteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// dataURIMime extracts the MIME type of a data: URI verbatim, matching
// the prefix up to the first separator. Returns "" when malformed.
func dataURIMime(uri string) string {
	rest := strings.TrimPrefix(uri, "data:")
	idx := strings.IndexByte(rest, ';')
	if idx <= 0 {
		return ""
	}
	return rest[:idx]
}

// extensionMime maps a recognizable file extension to a MIME type using
// a fixed table. A trailing query string is ignored. Returns "" when no
// extension is present; unknown extensions map to image/jpeg.
func extensionMime(locator string) string {
	dot := strings.LastIndexByte(locator, '.')
	if dot < 0 {
		return ""
	}
	ext := locator[dot+1:]
	if q := strings.IndexByte(ext, '?'); q >= 0 {
		ext = ext[:q]
	}
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return defaultImageMIME
	}
}
