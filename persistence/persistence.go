// Package persistence implements on-shutdown/on-startup save and reload of
// pending messages to disk, grounded on
// original_source/src/library/graphite_proxy/models/router.cpp's
// serialize/load methods (the file-format and truncate/delete-on-success
// rules), generalized with optional snappy compression and an optional S3
// mirror per SPEC_FULL.md §6/§7.
package persistence

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/golang/snappy"
	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/message"
)

// Uploader mirrors a local file to durable cloud storage after it has been
// written successfully. A failure here is logged but never fatal -- the
// local file is already safely on disk. Implemented by the optional S3
// sink; nil disables the behavior entirely.
type Uploader interface {
	Upload(path string, data []byte) error
}

// Store reads and writes the two persistence files. Compress enables
// snappy compression of the on-disk bytes; the line format is unchanged
// either way.
type Store struct {
	Compress bool
	Uploader Uploader
}

// SaveLines writes one line per entry in lines to path (truncating any
// existing file), optionally snappy-compressing the bytes, and optionally
// uploading the result. Returns the number of lines written, or -1 on I/O
// error. With no lines it writes nothing and returns 0: an existing file
// at path is not truncated, and no file is created.
func (s *Store) SaveLines(path string, lines []string) int {
	if len(lines) == 0 {
		return 0
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	data := []byte(sb.String())

	if s.Compress {
		data = snappy.Encode(nil, data)
	}

	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		log.WithField("path", path).WithError(err).Error("persistence: can't write save file, messages will be lost")
		return -1
	}

	if s.Uploader != nil {
		if err := s.Uploader.Upload(path, data); err != nil {
			log.WithField("path", path).WithError(err).Warn("persistence: cloud mirror upload failed")
		}
	}

	return len(lines)
}

// LoadLines reads path, decompressing if Compress is set, and returns its
// non-empty lines. A missing file is not an error -- nothing to load. On
// successful read the file is deleted.
func (s *Store) LoadLines(path string) ([]string, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: read %s: %w", path, err)
	}

	if s.Compress {
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("persistence: decompress %s: %w", path, err)
		}
		raw = decoded
	}

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithField("path", path).WithError(err).Warn("persistence: couldn't remove file after successful load")
	}

	return lines, nil
}

// PendingMessage pairs a message with the operation kind it was drained
// from (empty for pass-through messages), mirroring the fourth token in
// the aggregation persistence file.
type PendingMessage struct {
	Message message.Message
	Kind    string
}

// SerializeAggregation formats pending aggregation messages as
// "<name> <value> <ts> <kind>" lines.
func SerializeAggregation(pending []PendingMessage) []string {
	lines := make([]string, len(pending))
	for i, p := range pending {
		lines[i] = fmt.Sprintf("%s %s", p.Message.Serialize(), p.Kind)
	}
	return lines
}

// ParseAggregationLine splits a saved aggregation line into its message and
// kind. It requires exactly 4 whitespace-separated tokens.
func ParseAggregationLine(line string, receivedAt uint64) (message.Message, string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return message.Message{}, "", false
	}

	msg, ok := message.ParseLine(strings.Join(fields[:3], " "), receivedAt)
	if !ok {
		return message.Message{}, "", false
	}
	return msg, fields[3], true
}
