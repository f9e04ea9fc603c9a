package vocab

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary vocabulary format, little endian throughout:
//
//	magic        [4]byte "TPVB"
//	version      uint32
//	fingerprint  string
//	algorithm    string
//	normalizer   string
//	pretokenizer string
//	prefix       string
//	vocab_size   uint64
//	n_specials   uint64, then per special: token string, id uint64
//	n_base       uint64, then per base symbol: token string, id uint64
//	n_merges     uint64, then per rule: left string, right string
//
// Strings are a uint64 byte length followed by UTF-8 bytes. The section
// order mirrors the JSON document and is fixed.

const (
	binaryMagic   = "TPVB"
	binaryVersion = 1

	// Sanity limits for readers facing corrupted files.
	maxTokenBytes   = 1 << 20
	maxSectionCount = 1 << 26
)

// WriteBinary writes the vocabulary in the binary format.
func WriteBinary(w io.Writer, v *Vocabulary) error {
	bw := bufio.NewWriter(w)
	s := split(v)

	if _, err := bw.WriteString(binaryMagic); err != nil {
		return fmt.Errorf("vocab: write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(binaryVersion)); err != nil {
		return fmt.Errorf("vocab: write version: %w", err)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"fingerprint", s.Fingerprint},
		{"algorithm", s.Algorithm},
		{"normalizer", s.Normalizer},
		{"pretokenizer", s.Pretokenizer},
		{"subword prefix", s.SubwordPrefix},
	} {
		if err := writeString(bw, field.value); err != nil {
			return fmt.Errorf("vocab: write %s: %w", field.name, err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(s.VocabSize)); err != nil {
		return fmt.Errorf("vocab: write vocab size: %w", err)
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(s.Specials))); err != nil {
		return fmt.Errorf("vocab: write special count: %w", err)
	}
	for i, t := range s.Specials {
		if err := writeTokenID(bw, t); err != nil {
			return fmt.Errorf("vocab: write special %d/%d: %w", i, len(s.Specials), err)
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(s.Base))); err != nil {
		return fmt.Errorf("vocab: write base count: %w", err)
	}
	for i, t := range s.Base {
		if err := writeTokenID(bw, t); err != nil {
			return fmt.Errorf("vocab: write base symbol %d/%d: %w", i, len(s.Base), err)
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(s.Merges))); err != nil {
		return fmt.Errorf("vocab: write merge count: %w", err)
	}
	for i, rule := range s.Merges {
		if err := writeString(bw, rule.Left); err != nil {
			return fmt.Errorf("vocab: write merge %d/%d left: %w", i, len(s.Merges), err)
		}
		if err := writeString(bw, rule.Right); err != nil {
			return fmt.Errorf("vocab: write merge %d/%d right: %w", i, len(s.Merges), err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("vocab: flush: %w", err)
	}
	return nil
}

// ReadBinary parses the binary format, rebuilding and validating the snapshot.
func ReadBinary(r io.Reader) (*Vocabulary, error) {
	cr := &countingReader{r: r}

	var magic [4]byte
	if err := binary.Read(cr, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("vocab: read magic: %w", err)
	}
	if string(magic[:]) != binaryMagic {
		return nil, fmt.Errorf("vocab: invalid magic %q, expected %q", magic[:], binaryMagic)
	}
	var version uint32
	if err := binary.Read(cr, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("vocab: read version: %w", err)
	}
	if version != binaryVersion {
		return nil, fmt.Errorf("vocab: unsupported version %d (want %d)", version, binaryVersion)
	}

	var s sections
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{"fingerprint", &s.Fingerprint},
		{"algorithm", &s.Algorithm},
		{"normalizer", &s.Normalizer},
		{"pretokenizer", &s.Pretokenizer},
		{"subword prefix", &s.SubwordPrefix},
	} {
		value, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("vocab: read %s at byte %d: %w", field.name, cr.n, err)
		}
		*field.dst = value
	}

	var vocabSize uint64
	if err := binary.Read(cr, binary.LittleEndian, &vocabSize); err != nil {
		return nil, fmt.Errorf("vocab: read vocab size: %w", err)
	}
	if vocabSize > maxSectionCount {
		return nil, fmt.Errorf("vocab: vocab size %d exceeds limit", vocabSize)
	}
	s.VocabSize = int(vocabSize)

	specials, err := readTokenIDs(cr, "special")
	if err != nil {
		return nil, err
	}
	s.Specials = specials

	base, err := readTokenIDs(cr, "base symbol")
	if err != nil {
		return nil, err
	}
	s.Base = base

	var mergeCount uint64
	if err := binary.Read(cr, binary.LittleEndian, &mergeCount); err != nil {
		return nil, fmt.Errorf("vocab: read merge count: %w", err)
	}
	if mergeCount > maxSectionCount {
		return nil, fmt.Errorf("vocab: merge count %d exceeds limit", mergeCount)
	}
	s.Merges = make([]MergeRule, 0, mergeCount)
	for i := range mergeCount {
		left, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("vocab: read merge %d/%d left at byte %d: %w", i, mergeCount, cr.n, err)
		}
		right, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("vocab: read merge %d/%d right at byte %d: %w", i, mergeCount, cr.n, err)
		}
		s.Merges = append(s.Merges, MergeRule{Left: left, Right: right})
	}

	return join(s)
}

// countingReader wraps an io.Reader and counts bytes read, so error messages
// can point at the offending offset.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string data: %w", err)
	}
	return nil
}

func writeTokenID(w io.Writer, t tokenID) error {
	if err := writeString(w, t.Token); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(t.ID)); err != nil {
		return fmt.Errorf("write token id: %w", err)
	}
	return nil
}

// readString reads a uint64 length prefix followed by that many bytes.
func readString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if length > maxTokenBytes {
		return "", fmt.Errorf("string length %d exceeds %d byte limit", length, maxTokenBytes)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string data: %w", err)
	}
	return string(buf), nil
}

func readTokenIDs(cr *countingReader, what string) ([]tokenID, error) {
	var count uint64
	if err := binary.Read(cr, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("vocab: read %s count: %w", what, err)
	}
	if count > maxSectionCount {
		return nil, fmt.Errorf("vocab: %s count %d exceeds limit", what, count)
	}
	entries := make([]tokenID, 0, count)
	for i := range count {
		token, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("vocab: read %s %d/%d at byte %d: %w", what, i, count, cr.n, err)
		}
		var id uint64
		if err := binary.Read(cr, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("vocab: read %s %d/%d id: %w", what, i, count, err)
		}
		if id > maxSectionCount {
			return nil, fmt.Errorf("vocab: %s %q id %d exceeds limit", what, token, id)
		}
		entries = append(entries, tokenID{Token: token, ID: int(id)})
	}
	return entries, nil
}
