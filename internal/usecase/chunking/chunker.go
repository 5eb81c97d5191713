// Package chunking turns an ordered transcript into overlapping,
// speaker-aware text chunks sized for embedding.
package chunking

import (
	"fmt"
	"strings"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

// Options bounds chunk sizes in tokens.
type Options struct {
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

// DefaultOptions are the tuning used by the recovery path.
var DefaultOptions = Options{TargetTokens: 500, OverlapTokens: 100, MaxTokens: 1200}

// Validate checks 0 <= overlap < target <= max.
func (o Options) Validate() error {
	switch {
	case o.TargetTokens <= 0:
		return fmt.Errorf("target tokens must be positive, got %d", o.TargetTokens)
	case o.MaxTokens < o.TargetTokens:
		return fmt.Errorf("max tokens (%d) must be >= target tokens (%d)", o.MaxTokens, o.TargetTokens)
	case o.OverlapTokens < 0 || o.OverlapTokens >= o.TargetTokens:
		return fmt.Errorf("overlap tokens (%d) must be in [0, target)", o.OverlapTokens)
	}
	return nil
}

// Chunk is a candidate chunk before embedding.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int

	// Overlap is the number of leading lines repeated from the previous chunk.
	Overlap int

	PrimarySpeaker string
	PrimaryEmail   string
	Speakers       []string

	// Timestamps of the first and last lines not carried over as overlap.
	StartTimestamp string
	EndTimestamp   string
}

// Chunker splits transcripts. It holds no per-call state and is safe for
// concurrent use.
type Chunker struct {
	opts    Options
	counter TokenCounter
}

// New creates a Chunker. A nil counter uses HeuristicCounter.
func New(opts Options, counter TokenCounter) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Chunker{opts: opts, counter: counter}, nil
}

// Options returns the chunker's bounds.
func (c *Chunker) Options() Options {
	return c.opts
}

type line struct {
	speaker   string
	email     string
	timestamp string
	text      string
}

type builder struct {
	lines  []line
	text   string
	seeded int
}

func (b *builder) empty() bool {
	return len(b.lines) == 0
}

func (b *builder) add(l line) {
	if b.text == "" {
		b.text = l.text
	} else {
		b.text += "\n" + l.text
	}
	b.lines = append(b.lines, l)
}

func (b *builder) seed(lines []line) {
	b.lines = append([]line(nil), lines...)
	b.text = joinLines(lines)
	b.seeded = len(lines)
}

func (b *builder) lastSpeaker() string {
	return b.lines[len(b.lines)-1].speaker
}

func (b *builder) build(index int, counter TokenCounter) Chunk {
	fresh := b.lines[b.seeded:]
	primary := fresh[0]

	email := ""
	for _, l := range fresh {
		if l.speaker == primary.speaker && l.email != "" {
			email = l.email
			break
		}
	}

	seen := make(map[string]struct{}, len(b.lines))
	speakers := make([]string, 0, len(b.lines))
	for _, l := range b.lines {
		if _, ok := seen[l.speaker]; ok {
			continue
		}
		seen[l.speaker] = struct{}{}
		speakers = append(speakers, l.speaker)
	}

	return Chunk{
		Index:          index,
		Text:           b.text,
		TokenCount:     counter.Count(b.text),
		Overlap:        b.seeded,
		PrimarySpeaker: primary.speaker,
		PrimaryEmail:   email,
		Speakers:       speakers,
		StartTimestamp: primary.timestamp,
		EndTimestamp:   fresh[len(fresh)-1].timestamp,
	}
}

// Chunk splits segments, already in transcript order, into chunks.
//
// A chunk closes when the next line would push it past MaxTokens, or past
// TargetTokens while the speaker changes. The next chunk opens with the most
// recent lines totalling at most OverlapTokens. A line that alone exceeds
// MaxTokens is split into standalone chunks that carry no overlap.
func (c *Chunker) Chunk(segments []entities.TranscriptSegment) []Chunk {
	var (
		chunks  []Chunk
		cur     builder
		overlap []line
	)

	flush := func() {
		if len(cur.lines) > cur.seeded {
			chunks = append(chunks, cur.build(len(chunks), c.counter))
		}
		cur = builder{}
	}

	for _, seg := range segments {
		body := strings.TrimSpace(seg.Text)
		if body == "" {
			continue
		}
		l := line{
			speaker:   seg.Speaker(),
			email:     seg.Email(),
			timestamp: seg.Timestamp,
		}
		l.text = l.speaker + ": " + body

		if c.counter.Count(l.text) > c.opts.MaxTokens {
			flush()
			for _, piece := range splitOversized(l.text, c.opts.MaxTokens, c.counter) {
				part := l
				part.text = piece
				cur.add(part)
				flush()
			}
			overlap = nil
			continue
		}

		if !cur.empty() {
			next := c.counter.Count(cur.text + "\n" + l.text)
			speakerChange := cur.lastSpeaker() != l.speaker
			if next > c.opts.MaxTokens || (next > c.opts.TargetTokens && speakerChange) {
				flush()
				overlap = c.fitOverlap(overlap, l)
				cur.seed(overlap)
			}
		}

		cur.add(l)
		overlap = c.trimOverlap(append(overlap, l))
	}
	flush()

	return chunks
}

// trimOverlap drops the oldest lines until the buffer fits OverlapTokens.
func (c *Chunker) trimOverlap(buf []line) []line {
	for len(buf) > 0 && c.counter.Count(joinLines(buf)) > c.opts.OverlapTokens {
		buf = buf[1:]
	}
	return buf
}

// fitOverlap drops the oldest lines until the seeded chunk plus next fits MaxTokens.
func (c *Chunker) fitOverlap(buf []line, next line) []line {
	for len(buf) > 0 && c.counter.Count(joinLines(buf)+"\n"+next.text) > c.opts.MaxTokens {
		buf = buf[1:]
	}
	return buf
}

func joinLines(lines []line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}
