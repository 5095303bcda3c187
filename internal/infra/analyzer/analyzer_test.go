package analyzer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/hhrutter/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
	"github.com/bryanwahyu/docforensics/internal/testutil"
)

func analyze(t *testing.T, a forensics.ContentAnalyzer, name, declared string, data []byte) *forensics.AnalysisResult {
	t.Helper()
	path := testutil.WriteFile(t, name, data)
	r, err := a.Analyze(context.Background(), path, forensics.FileInfo{
		Filename:     name,
		Size:         int64(len(data)),
		DeclaredType: declared,
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, a.Kind(), r.Analyzer)
	return r
}

func codes(r *forensics.AnalysisResult) []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.Code)
	}
	return out
}

func wordPackage(extra map[string]string) []byte {
	parts := map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"_rels/.rels":         `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml":   testutil.DocumentXML(`<w:p><w:r><w:t>Plain paragraph</w:t></w:r></w:p>`),
	}
	for k, v := range extra {
		parts[k] = v
	}
	return testutil.Zip(parts)
}

// Text

func TestTextCleanPlainText(t *testing.T) {
	r := analyze(t, NewText(nil), "note.txt", "text/plain", []byte("The quick brown fox.\nJumps over the lazy dog.\n"))

	assert.Equal(t, forensics.StatusCompleted, r.Status)
	assert.Empty(t, r.Findings)
	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, forensics.RiskLevelNone, r.RiskLevel)
	assert.Equal(t, 9, r.Details["words"])
}

func TestTextHiddenCharacters(t *testing.T) {
	text := "Pay to\u200b account 1234.\n\u202eevil\u202c text\n"
	r := analyze(t, NewText(nil), "note.txt", "text/plain", []byte(text))

	assert.ElementsMatch(t, []string{"bidi-override", "zero-width"}, codes(r))
	assert.Equal(t, 35, r.RiskScore)
	assert.Equal(t, 1, r.Counts.High)
	assert.Equal(t, 1, r.Counts.Medium)
	assert.Equal(t, forensics.RiskLevelMedium, r.RiskLevel)
}

func TestTextLeadingBOMIsIgnored(t *testing.T) {
	r := analyze(t, NewText(nil), "note.txt", "text/plain", []byte("\ufeffplain text"))
	assert.Empty(t, r.Findings)
}

func TestTextMixedScriptAndLineEndings(t *testing.T) {
	// the a in "paypal" below is Cyrillic
	text := "Login at p\u0430yp\u0430l today\r\nsecond line\nthird line\n"
	r := analyze(t, NewText(nil), "mail.txt", "", []byte(text))

	assert.Contains(t, codes(r), "mixed-script")
	assert.Contains(t, codes(r), "mixed-line-endings")
	assert.Equal(t, "text", r.Details["source"])
}

func TestTextInvalidUTF8(t *testing.T) {
	r := analyze(t, NewText(nil), "latin1.txt", "text/plain", []byte("caf\xe9 au lait"))
	assert.Contains(t, codes(r), "non-utf8")
	assert.Contains(t, codes(r), "replacement-chars")
}

func TestTextWordTrackedChanges(t *testing.T) {
	body := `<w:p w:rsidR="00A1" w:rsidRDefault="00B2"><w:r><w:t>Amount: </w:t></w:r>` +
		`<w:del w:id="1" w:author="Mallory"><w:r><w:delText>100</w:delText></w:r></w:del>` +
		`<w:ins w:id="2" w:author="Mallory"><w:r><w:t>900</w:t></w:r></w:ins></w:p>`
	data := wordPackage(map[string]string{"word/document.xml": testutil.DocumentXML(body)})
	r := analyze(t, NewText(nil), "invoice.docx", forensics.TypeDOCX, data)

	assert.Contains(t, codes(r), "tracked-changes")
	assert.Contains(t, codes(r), "edit-sessions")
	assert.Equal(t, 1, r.Details["insertions"])
	assert.Equal(t, 1, r.Details["deletions"])
	assert.Equal(t, 2, r.Details["revisionSessions"])
}

func TestTextWordWithoutBody(t *testing.T) {
	data := testutil.Zip(map[string]string{"docProps/core.xml": "<x/>"})
	r := analyze(t, NewText(nil), "empty.docx", forensics.TypeDOCX, data)
	assert.Contains(t, codes(r), "missing-body")
}

func TestTextWordOversizedBody(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 17 MiB part")
	}
	para := `<w:p><w:r><w:t>` + strings.Repeat("filler ", (17<<20)/7) + `</w:t></w:r></w:p>`
	docx := wordPackage(map[string]string{"word/document.xml": testutil.DocumentXML(para)})

	r := analyze(t, NewText(nil), "long.docx", forensics.TypeDOCX, docx)
	assert.Contains(t, codes(r), "oversized-part")
	assert.Equal(t, []string{"word/document.xml"}, r.Details["truncatedParts"])
}

func TestTextPDFFontsAndTrailingData(t *testing.T) {
	pdf := testutil.PDF(testutil.PDFOptions{
		Fonts: []string{"Helvetica", "Times-Roman", "Courier", "Symbol", "ABCDEF+Arial", "GHIJKL+Arial"},
	})
	pdf = append(pdf, []byte("<script>payload</script>")...)
	r := analyze(t, NewText(nil), "doc.pdf", forensics.TypePDF, pdf)

	assert.Contains(t, codes(r), "many-fonts")
	assert.Contains(t, codes(r), "font-resubset")
	assert.Contains(t, codes(r), "trailing-data")
	assert.Equal(t, []string{"Arial", "Courier", "Helvetica", "Symbol", "Times-Roman"}, r.Details["fonts"])
}

func TestTextPDFShownTextIsScanned(t *testing.T) {
	pdf := testutil.PDF(testutil.PDFOptions{Text: "p\u0430yp\u0430l"})
	r := analyze(t, NewText(nil), "doc.pdf", forensics.TypePDF, pdf)
	assert.Contains(t, codes(r), "mixed-script")
}

func TestTextNotApplicable(t *testing.T) {
	r := analyze(t, NewText(nil), "photo.png", "image/png", testutil.PNG(4, 4))
	assert.Equal(t, forensics.StatusNotApplicable, r.Status)
	assert.Equal(t, "no textual content", r.Details["reason"])

	r = analyze(t, NewText(nil), "old.doc", forensics.TypeDOC, []byte{0xD0, 0xCF, 0x11, 0xE0})
	assert.Equal(t, forensics.StatusNotApplicable, r.Status)
}

// Image

func TestImagePNG(t *testing.T) {
	r := analyze(t, NewImage(nil), "scan.png", "image/png", testutil.PNG(20, 10))

	assert.Equal(t, forensics.StatusCompleted, r.Status)
	assert.Empty(t, r.Findings)
	assert.Equal(t, "png", r.Details["format"])
	assert.Equal(t, 20, r.Details["width"])
	assert.Equal(t, 10, r.Details["height"])
}

func TestImageTypeMismatch(t *testing.T) {
	r := analyze(t, NewImage(nil), "photo.jpg", "image/jpeg", testutil.PNG(4, 4))
	assert.Contains(t, codes(r), "type-mismatch")
	assert.Equal(t, forensics.RiskLevelMedium, r.RiskLevel)
}

func TestImageJPEGEditorMarker(t *testing.T) {
	data := append(testutil.JPEG(16, 16, 90), []byte("Adobe Photoshop CC 2024")...)
	r := analyze(t, NewImage(nil), "photo.jpg", "image/jpeg", data)

	assert.Contains(t, codes(r), "editing-software")
	assert.Contains(t, codes(r), "no-exif")
	assert.Equal(t, "jpeg", r.Details["format"])
	assert.Equal(t, false, r.Details["exif"])
}

func TestResultsDoNotNameTheUpload(t *testing.T) {
	const name = "alice_secret.png"
	inputs := []struct {
		declared string
		data     []byte
	}{
		{"image/png", testutil.JPEG(16, 16, 90)},
		{"image/png", []byte("\x89PNG\r\n\x1a\nnot really")},
		{"", testutil.PNG(3, 3)},
		{forensics.TypePDF, testutil.PDF(testutil.PDFOptions{Text: "Invoice"})},
	}
	for _, in := range inputs {
		for _, a := range []forensics.ContentAnalyzer{NewText(nil), NewImage(nil), NewSignature(nil)} {
			r := analyze(t, a, name, in.declared, in.data)
			out, err := json.Marshal(r)
			require.NoError(t, err)
			assert.NotContains(t, string(out), "alice_secret", "%s analyzer on %q", a.Kind(), in.declared)
		}
	}
}

func TestImageUndecodable(t *testing.T) {
	r := analyze(t, NewImage(nil), "broken.png", "image/png", []byte("\x89PNG\r\n\x1a\nnot really"))
	assert.Contains(t, codes(r), "undecodable-image")
	assert.NotContains(t, codes(r), "type-mismatch")
}

func TestImageSniffedWithoutDeclaredType(t *testing.T) {
	r := analyze(t, NewImage(nil), "upload", "", testutil.PNG(3, 3))
	assert.Equal(t, forensics.StatusCompleted, r.Status)
	assert.Equal(t, 1, r.Details["imageCount"])
}

func TestImageWordMedia(t *testing.T) {
	data := wordPackage(map[string]string{
		"word/media/image1.png":  string(testutil.PNG(8, 8)),
		"word/media/image2.jpeg": string(testutil.PNG(8, 8)),
	})
	r := analyze(t, NewImage(nil), "report.docx", forensics.TypeDOCX, data)

	assert.Equal(t, 2, r.Details["imageCount"])
	assert.Equal(t, []string{"image1.png", "image2.jpeg"}, r.Details["media"])
	assert.Contains(t, codes(r), "type-mismatch")
}

func TestImageWordOversizedMedia(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 17 MiB part")
	}
	docx := wordPackage(map[string]string{
		"word/media/image1.png": string(testutil.PNG(8, 8)),
		"word/media/scan.png":   strings.Repeat("\x00", 17<<20),
	})

	r := analyze(t, NewImage(nil), "scans.docx", forensics.TypeDOCX, docx)
	assert.Contains(t, codes(r), "oversized-part")
	assert.NotContains(t, codes(r), "undecodable-image")
	assert.Equal(t, []string{"word/media/scan.png"}, r.Details["truncatedParts"])
	assert.ElementsMatch(t, []string{"image1.png", "scan.png"}, r.Details["media"])
}

func TestImagePDFEmbeddedJPEG(t *testing.T) {
	jpg := testutil.JPEG(8, 8, 75)
	xobj := fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n%s\nendstream", len(jpg), jpg)
	pdf := testutil.PDF(testutil.PDFOptions{Extra: []string{xobj}})
	r := analyze(t, NewImage(nil), "scan.pdf", forensics.TypePDF, pdf)

	assert.Equal(t, forensics.StatusCompleted, r.Status)
	assert.Equal(t, 1, r.Details["imageCount"])
	assert.Equal(t, 1, r.Details["inspectedImages"])
	assert.Equal(t, 8, r.Details["width"])
}

func TestImageNotApplicable(t *testing.T) {
	r := analyze(t, NewImage(nil), "note.txt", "text/plain", []byte("hello"))
	assert.Equal(t, forensics.StatusNotApplicable, r.Status)
	assert.Equal(t, 0, r.RiskScore)
}

// Signature

const sigHexLen = 8192

const byteRangePlaceholder = "/ByteRange [0000000000 0000000000 0000000000 0000000000]"

// signedPDF returns a PDF carrying a detached PKCS#7 signature over its
// byte ranges, made with a fresh self-signed certificate.
func signedPDF(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "Test Signer", Organization: []string{"Acme"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	sigObj := "<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached " +
		byteRangePlaceholder + " /Contents <" + strings.Repeat("0", sigHexLen) + "> >>"
	pdf := testutil.PDF(testutil.PDFOptions{Extra: []string{sigObj}})

	lt := bytes.Index(pdf, []byte("/Contents <")) + len("/Contents ")
	require.Equal(t, byte('<'), pdf[lt])
	gtEnd := lt + 1 + sigHexLen + 1
	require.Equal(t, byte('>'), pdf[gtEnd-1])

	br := fmt.Sprintf("/ByteRange [%010d %010d %010d %010d]", 0, lt, gtEnd, len(pdf)-gtEnd)
	require.Len(t, br, len(byteRangePlaceholder))
	copy(pdf[bytes.Index(pdf, []byte(byteRangePlaceholder)):], br)

	content := append(append([]byte{}, pdf[:lt]...), pdf[gtEnd:]...)
	sd, err := pkcs7.NewSignedData(content)
	require.NoError(t, err)
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	require.NoError(t, sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}))
	sd.Detach()
	sig, err := sd.Finish()
	require.NoError(t, err)

	h := strings.ToUpper(hex.EncodeToString(sig))
	require.LessOrEqual(t, len(h), sigHexLen)
	copy(pdf[lt+1:], h)
	return pdf
}

func TestSignatureHashesEveryFile(t *testing.T) {
	data := []byte("just some text")
	r := analyze(t, NewSignature(nil), "note.txt", "text/plain", data)

	sum := sha256.Sum256(data)
	assert.Equal(t, forensics.StatusNotApplicable, r.Status)
	assert.Equal(t, hex.EncodeToString(sum[:]), r.Details["sha256"])
	assert.NotEmpty(t, r.Details["xxhash"])
}

func TestSignatureUnsignedPDF(t *testing.T) {
	r := analyze(t, NewSignature(nil), "plain.pdf", forensics.TypePDF, testutil.PDF(testutil.PDFOptions{}))

	assert.Equal(t, forensics.StatusCompleted, r.Status)
	assert.Empty(t, r.Findings)
	assert.Equal(t, false, r.Details["signed"])
	assert.Equal(t, 1, r.Details["revisions"])
}

func TestSignatureValidPDF(t *testing.T) {
	r := analyze(t, NewSignature(nil), "signed.pdf", forensics.TypePDF, signedPDF(t))

	assert.ElementsMatch(t, []string{"signature-valid", "self-signed"}, codes(r))
	assert.Equal(t, 3, r.RiskScore)
	assert.Equal(t, true, r.Details["signed"])

	sigs, ok := r.Details["signatures"].([]signatureInfo)
	require.True(t, ok)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Valid)
	assert.Equal(t, "whole document", sigs[0].Covers)
	assert.Contains(t, sigs[0].Signer, "Test Signer")
	assert.NotEmpty(t, sigs[0].SigningTime)
}

func TestSignatureTamperedPDF(t *testing.T) {
	pdf := signedPDF(t)
	tampered := bytes.Replace(pdf, []byte("(Hello)"), []byte("(Hellp)"), 1)
	require.NotEqual(t, pdf, tampered)

	r := analyze(t, NewSignature(nil), "signed.pdf", forensics.TypePDF, tampered)

	assert.Contains(t, codes(r), "signature-invalid")
	assert.NotContains(t, codes(r), "signature-valid")
	assert.Equal(t, 1, r.Counts.Critical)
}

func TestSignatureContentAppendedAfterSigning(t *testing.T) {
	pdf := append(signedPDF(t), []byte("4 0 obj\n<< /Length 3 >>\nstream\nBT\nendstream\nendobj\n%%EOF\n")...)
	r := analyze(t, NewSignature(nil), "signed.pdf", forensics.TypePDF, pdf)

	assert.Contains(t, codes(r), "signature-valid")
	assert.Contains(t, codes(r), "modified-after-signing")
	assert.Contains(t, codes(r), "incremental-updates")
	assert.Equal(t, 2, r.Details["revisions"])

	sigs := r.Details["signatures"].([]signatureInfo)
	assert.Equal(t, "earlier revision", sigs[0].Covers)
}

func TestSignatureBadByteRange(t *testing.T) {
	pdf := testutil.PDF(testutil.PDFOptions{Extra: []string{
		"<< /Type /Sig /ByteRange [0 10 99999999 10] /Contents <00> >>",
	}})
	r := analyze(t, NewSignature(nil), "bad.pdf", forensics.TypePDF, pdf)
	assert.Contains(t, codes(r), "invalid-byte-range")
	assert.Equal(t, forensics.RiskLevelMedium, r.RiskLevel)
}

func TestSignatureByteRangeOverflow(t *testing.T) {
	for name, rng := range map[string]string{
		"sum overflows":   "[0 1 9000000000000000000 9000000000000000000]",
		"gap past end":    "[0 1 9223372036854775807 0]",
		"not an int64":    "[0 10 123456789012345678901234 10]",
		"length past end": "[0 1 2 9223372036854775807]",
	} {
		t.Run(name, func(t *testing.T) {
			pdf := testutil.PDF(testutil.PDFOptions{Extra: []string{
				"<< /Type /Sig /ByteRange " + rng + " /Contents <00> >>",
			}})
			var r *forensics.AnalysisResult
			require.NotPanics(t, func() {
				r = analyze(t, NewSignature(nil), "huge.pdf", forensics.TypePDF, pdf)
			})
			assert.Contains(t, codes(r), "invalid-byte-range")
			assert.NotContains(t, codes(r), "modified-after-signing")
		})
	}
}

func TestSignatureDictWithoutByteRange(t *testing.T) {
	pdf := testutil.PDF(testutil.PDFOptions{Extra: []string{"<< /Type /Sig /Filter /Adobe.PPKLite >>"}})
	r := analyze(t, NewSignature(nil), "odd.pdf", forensics.TypePDF, pdf)
	assert.Equal(t, []string{"malformed-signature"}, codes(r))
}

func TestSignatureWordPackage(t *testing.T) {
	r := analyze(t, NewSignature(nil), "plain.docx", forensics.TypeDOCX, wordPackage(nil))
	assert.Empty(t, r.Findings)
	assert.Equal(t, false, r.Details["signed"])

	r = analyze(t, NewSignature(nil), "signed.docx", forensics.TypeDOCX, wordPackage(map[string]string{
		"_xmlsignatures/sig1.xml":               "<Signature/>",
		"_xmlsignatures/origin.sigs":            "",
		"_xmlsignatures/_rels/origin.sigs.rels": "<Relationships/>",
	}))
	assert.Equal(t, []string{"xml-signature-unverified"}, codes(r))
	assert.Equal(t, []string{"_xmlsignatures/sig1.xml"}, r.Details["signatures"])

	r = analyze(t, NewSignature(nil), "macro.docx", forensics.TypeDOCX, wordPackage(map[string]string{
		"word/vbaProject.bin": "binary",
	}))
	assert.Contains(t, codes(r), "macros")
}

func TestAnalyzersAreDeterministic(t *testing.T) {
	pdf := signedPDF(t)
	for _, a := range []forensics.ContentAnalyzer{NewText(nil), NewImage(nil), NewSignature(nil)} {
		first := analyze(t, a, "doc.pdf", forensics.TypePDF, pdf)
		second := analyze(t, a, "doc.pdf", forensics.TypePDF, pdf)
		assert.Equal(t, first, second, string(a.Kind()))
	}
}

func TestAnalyzersReportMissingFile(t *testing.T) {
	for _, a := range []forensics.ContentAnalyzer{NewText(nil), NewImage(nil), NewSignature(nil)} {
		_, err := a.Analyze(context.Background(), "/nonexistent/x.pdf", forensics.FileInfo{Filename: "x.pdf"})
		assert.Error(t, err, string(a.Kind()))
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classPDF, classify(forensics.TypePDF, "text/plain", nil))
	assert.Equal(t, classPDF, classify("", "application/pdf", []byte("%PDF")))
	assert.Equal(t, classOther, classify("application/zip", "application/zip", []byte("PK")))
	assert.Equal(t, classText, classify("", "application/octet-stream", []byte("hello")))
	assert.Equal(t, classImage, classify("application/octet-stream", "image/png", nil))
}
