package study

import "testing"

func TestNormalizeImageDataURI(t *testing.T) {
	cases := []struct {
		locator string
		mime    string
	}{
		{"data:image/png;base64,iVBORw0KGgo=", "image/png"},
		{"data:image/webp;base64,AAAA", "image/webp"},
		{"data:application/octet-stream;base64,AAAA", "application/octet-stream"},
	}

	for _, c := range cases {
		ref := NormalizeImage(c.locator)
		if ref.MIMEType != c.mime {
			t.Errorf("NormalizeImage(%q) mime = %q, want %q", c.locator, ref.MIMEType, c.mime)
		}
		if ref.Remote {
			t.Errorf("NormalizeImage(%q) classified as remote", c.locator)
		}
	}
}

func TestNormalizeImageMalformedDataURIDefaultsToJpeg(t *testing.T) {
	ref := NormalizeImage("data:nonsense")
	if ref.MIMEType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", ref.MIMEType)
	}
}

func TestNormalizeImageRemoteURL(t *testing.T) {
	cases := []struct {
		locator string
		mime    string
	}{
		{"https://example.com/page.png", "image/png"},
		{"https://example.com/anim.gif?token=abc", "image/gif"},
		{"http://example.com/photo.webp", "image/webp"},
		{"HTTPS://example.com/scan.jpg", "image/jpeg"},
		{"https://example.com/file.tiff", "image/jpeg"},
		{"https://example.com/noextension", "image/jpeg"},
	}

	for _, c := range cases {
		ref := NormalizeImage(c.locator)
		if !ref.Remote {
			t.Errorf("NormalizeImage(%q) not classified as remote", c.locator)
		}
		if ref.MIMEType != c.mime {
			t.Errorf("NormalizeImage(%q) mime = %q, want %q", c.locator, ref.MIMEType, c.mime)
		}
	}
}

func TestNormalizeImageBarePayload(t *testing.T) {
	ref := NormalizeImage("aGVsbG8gd29ybGQ=")
	if ref.Remote {
		t.Fatal("bare payload classified as remote")
	}
	if ref.MIMEType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", ref.MIMEType)
	}
	if ref.URI() != "data:image/jpeg;base64,aGVsbG8gd29ybGQ=" {
		t.Fatalf("unexpected transport URI: %q", ref.URI())
	}
}

func TestNormalizeDocumentAlwaysPDF(t *testing.T) {
	for _, locator := range []string{
		"JVBERi0xLjQK",
		"https://example.com/book.pdf",
		"data:application/pdf;base64,JVBERi0xLjQK",
	} {
		ref := NormalizeDocument(locator)
		if ref.MIMEType != "application/pdf" {
			t.Errorf("NormalizeDocument(%q) mime = %q, want application/pdf", locator, ref.MIMEType)
		}
		if ref.Kind != MediaDocument {
			t.Errorf("NormalizeDocument(%q) kind = %q", locator, ref.Kind)
		}
	}
}

func TestMediaRefURIPassthrough(t *testing.T) {
	url := "https://example.com/a.png"
	if got := NormalizeImage(url).URI(); got != url {
		t.Fatalf("remote URI changed in transport form: %q", got)
	}
	dataURI := "data:image/png;base64,AAAA"
	if got := NormalizeImage(dataURI).URI(); got != dataURI {
		t.Fatalf("data URI changed in transport form: %q", got)
	}
}
