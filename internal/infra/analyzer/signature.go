package analyzer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gobeaver/filekit/filevalidator"
	"github.com/hhrutter/pkcs7"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

var (
	byteRangeRe = regexp.MustCompile(`/ByteRange\s*\[\s*(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s*\]`)
	sigDictRe   = regexp.MustCompile(`/Type\s*/Sig\b`)
	eofRe       = regexp.MustCompile(`%%EOF`)
)

// Signature checks embedded digital signatures and structural integrity.
type Signature struct {
	Logger *slog.Logger
}

func NewSignature(logger *slog.Logger) *Signature {
	return &Signature{Logger: logger}
}

func (s *Signature) Kind() forensics.Kind { return forensics.KindSignature }

func (s *Signature) Analyze(ctx context.Context, path string, info forensics.FileInfo) (*forensics.AnalysisResult, error) {
	d, err := load(ctx, path, info)
	if err != nil {
		return nil, err
	}
	b := forensics.NewResultBuilder(forensics.KindSignature)

	sum := sha256.Sum256(d.data)
	b.Detail("sha256", hex.EncodeToString(sum[:]))
	b.Detail("xxhash", strconv.FormatUint(xxhash.Sum64(d.data), 16))

	switch d.class {
	case classPDF:
		pdfStructure(b, d.data)
		pdfSignatures(b, d.data)
	case classDOCX:
		docxStructure(b, d.data)
		docxSignatures(b, d)
	default:
		b.NotApplicable("format carries no embedded signatures")
	}

	r := b.Build()
	s.logger().Debug("signature analysis", "file", info.Filename, "class", d.class, "findings", len(r.Findings))
	return r, nil
}

func pdfStructure(b *forensics.ResultBuilder, data []byte) {
	if err := filevalidator.DefaultPDFValidator().ValidateContent(bytes.NewReader(data), int64(len(data))); err != nil {
		b.Add(forensics.SeverityMedium, "invalid-structure", "Malformed PDF structure", validationMessage(err))
	}

	revisions := len(eofRe.FindAllIndex(data, -1))
	b.Detail("revisions", revisions)
	if revisions > 1 {
		b.Add(forensics.SeverityLow, "incremental-updates", "Incrementally updated",
			fmt.Sprintf("The file holds %d revisions; content was changed after it was first saved.", revisions))
	}
}

type signatureInfo struct {
	ByteRange   [4]int64 `json:"byteRange"`
	Covers      string   `json:"covers"`
	Valid       bool     `json:"valid"`
	Signer      string   `json:"signer,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	NotBefore   string   `json:"notBefore,omitempty"`
	NotAfter    string   `json:"notAfter,omitempty"`
	SigningTime string   `json:"signingTime,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func pdfSignatures(b *forensics.ResultBuilder, data []byte) {
	matches := byteRangeRe.FindAllSubmatch(data, -1)
	b.Detail("signed", len(matches) > 0)
	if len(matches) == 0 {
		if sigDictRe.Match(data) {
			b.Add(forensics.SeverityMedium, "malformed-signature", "Signature without byte range",
				"A signature dictionary exists but does not declare which bytes it covers.")
		}
		return
	}

	size := int64(len(data))
	var sigs []signatureInfo
	var coveredTo int64
	for i, m := range matches {
		br, err := parseByteRange(m[1:])
		if err != nil {
			sigs = append(sigs, invalidByteRange(b, br, i+1, size))
			continue
		}
		si := checkPDFSignature(b, data, br, i+1)
		if validByteRange(br, size) {
			coveredTo = max(coveredTo, br[2]+br[3])
		}
		sigs = append(sigs, si)
	}
	b.Detail("signatures", sigs)

	if coveredTo > 0 && coveredTo < size {
		if tail := bytes.TrimSpace(data[coveredTo:]); len(tail) > 0 {
			b.Add(forensics.SeverityHigh, "modified-after-signing", "Changed after signing",
				fmt.Sprintf("%d bytes after the last signed revision are not covered by any signature.", len(tail)))
		}
	}
}

func parseByteRange(fields [][]byte) ([4]int64, error) {
	var br [4]int64
	for j := range br {
		v, err := strconv.ParseInt(string(fields[j]), 10, 64)
		if err != nil {
			return br, err
		}
		br[j] = v
	}
	return br, nil
}

// validByteRange reports whether br is [0 gapStart gapEnd length] with the
// gap and the second range inside a file of size bytes. Every bound is
// checked before any addition so huge values cannot overflow.
func validByteRange(br [4]int64, size int64) bool {
	return br[0] == 0 &&
		br[1] > 0 && br[1] <= size &&
		br[2] > br[1] && br[2] <= size &&
		br[3] >= 0 && br[3] <= size-br[2]
}

func invalidByteRange(b *forensics.ResultBuilder, br [4]int64, n int, size int64) signatureInfo {
	b.Add(forensics.SeverityCritical, "invalid-byte-range", "Invalid signature byte range",
		fmt.Sprintf("Signature %d declares %v, which does not fit a %d byte file.", n, br, size))
	return signatureInfo{ByteRange: br, Error: "byte range out of bounds"}
}

func checkPDFSignature(b *forensics.ResultBuilder, data []byte, br [4]int64, n int) signatureInfo {
	si := signatureInfo{ByteRange: br}
	size := int64(len(data))
	if !validByteRange(br, size) {
		return invalidByteRange(b, br, n, size)
	}
	gapStart, gapEnd := br[1], br[2]
	if br[2]+br[3] == size {
		si.Covers = "whole document"
	} else {
		si.Covers = "earlier revision"
	}

	gap := bytes.TrimSpace(data[gapStart:gapEnd])
	if len(gap) < 2 || gap[0] != '<' || gap[len(gap)-1] != '>' {
		si.Error = "byte range gap is not the signature value"
		b.Add(forensics.SeverityCritical, "invalid-byte-range", "Invalid signature byte range",
			fmt.Sprintf("Signature %d leaves a gap that is not a hex string.", n))
		return si
	}
	der, err := signatureDER(gap[1 : len(gap)-1])
	if err != nil {
		si.Error = err.Error()
		b.Add(forensics.SeverityHigh, "signature-unparseable", "Signature cannot be parsed",
			fmt.Sprintf("Signature %d: %v", n, err))
		return si
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		si.Error = err.Error()
		b.Add(forensics.SeverityHigh, "signature-unparseable", "Signature cannot be parsed",
			fmt.Sprintf("Signature %d: %v", n, err))
		return si
	}
	describeSigner(&si, p7)

	signed := make([]byte, 0, br[1]+br[3])
	signed = append(signed, data[br[0]:br[0]+br[1]]...)
	signed = append(signed, data[br[2]:br[2]+br[3]]...)

	if len(p7.Content) == 0 {
		p7.Content = signed
	} else {
		// adbe.pkcs7.sha1: the signed content is the SHA-1 of the byte ranges
		digest := sha1.Sum(signed)
		if !bytes.Equal(p7.Content, digest[:]) {
			si.Error = "embedded digest does not match document"
			b.Add(forensics.SeverityCritical, "signature-invalid", "Signature does not match content",
				fmt.Sprintf("Signature %d: the signed digest differs from the document bytes.", n))
			return si
		}
	}

	if err := p7.Verify(); err != nil {
		si.Error = err.Error()
		var mismatch *pkcs7.MessageDigestMismatchError
		summary := fmt.Sprintf("Signature %d: %v", n, err)
		if errors.As(err, &mismatch) {
			summary = fmt.Sprintf("Signature %d: the signed bytes were altered after signing.", n)
		}
		b.Add(forensics.SeverityCritical, "signature-invalid", "Signature does not match content", summary)
		return si
	}

	si.Valid = true
	b.Add(forensics.SeverityInfo, "signature-valid", "Signature verified",
		fmt.Sprintf("Signature %d by %s matches the bytes it covers.", n, orUnknown(si.Signer)))
	if cert := p7.GetOnlySigner(); cert != nil && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		b.Add(forensics.SeverityLow, "self-signed", "Self-signed certificate",
			fmt.Sprintf("Signature %d uses a certificate that was not issued by a third party.", n))
	}
	return si
}

// signatureDER decodes the /Contents hex string and drops the zero padding
// that follows the DER structure.
func signatureDER(hexValue []byte) ([]byte, error) {
	clean := bytes.Map(func(r rune) rune {
		switch r {
		case ' ', '\r', '\n', '\t':
			return -1
		}
		return r
	}, hexValue)
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	raw := make([]byte, hex.DecodedLen(len(clean)))
	if _, err := hex.Decode(raw, clean); err != nil {
		return nil, fmt.Errorf("decode signature hex: %w", err)
	}
	var v asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("signature is not DER: %w", err)
	}
	return v.FullBytes, nil
}

func describeSigner(si *signatureInfo, p7 *pkcs7.PKCS7) {
	cert := p7.GetOnlySigner()
	if cert == nil && len(p7.Certificates) > 0 {
		cert = p7.Certificates[0]
	}
	if cert != nil {
		si.Signer = cert.Subject.String()
		si.Issuer = cert.Issuer.String()
		si.NotBefore = cert.NotBefore.UTC().Format(time.RFC3339)
		si.NotAfter = cert.NotAfter.UTC().Format(time.RFC3339)
	}
	var t time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &t); err == nil {
		si.SigningTime = t.UTC().Format(time.RFC3339)
	}
}

func docxStructure(b *forensics.ResultBuilder, data []byte) {
	err := filevalidator.DefaultOfficeValidator().ValidateContent(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		return
	}
	msg := validationMessage(err)
	if strings.Contains(msg, "macro") {
		b.Add(forensics.SeverityHigh, "macros", "Contains macros",
			"The package embeds a VBA project; macros can rewrite content when opened.")
		return
	}
	b.Add(forensics.SeverityMedium, "invalid-structure", "Malformed Word package", msg)
}

func docxSignatures(b *forensics.ResultBuilder, d *document) {
	if d.zr == nil {
		b.Detail("signed", false)
		return
	}
	var parts []string
	for _, f := range d.partsWithPrefix("_xmlsignatures/") {
		if strings.HasSuffix(f.Name, ".xml") && !strings.Contains(f.Name, "_rels/") {
			parts = append(parts, f.Name)
		}
	}
	b.Detail("signed", len(parts) > 0)
	if len(parts) == 0 {
		return
	}
	b.Detail("signatures", parts)
	b.Add(forensics.SeverityInfo, "xml-signature-unverified", "XML signature present",
		fmt.Sprintf("%d XML-DSig parts found; their digests were not recomputed.", len(parts)))
}

func validationMessage(err error) string {
	if msg := filevalidator.GetErrorMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown signer"
	}
	return s
}

func (s *Signature) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
