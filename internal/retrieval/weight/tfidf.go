package weight

import (
	"math"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// TFIDF is the classic raw term-frequency times inverse-document-frequency
// scheme, with no document-length normalisation.
type TFIDF struct {
	idf    float64
	factor float64
	max    float64
}

// NewTFIDF returns a TF-IDF scheme. It takes no parameters.
func NewTFIDF() *TFIDF { return &TFIDF{} }

func (s *TFIDF) Name() string { return "tfidf" }

func (s *TFIDF) Clone() Scheme { return &TFIDF{} }

func (s *TFIDF) Serialise() []byte { return nil }

func (s *TFIDF) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("tfidf", 0, len(data))
	}
	return &TFIDF{}, nil
}

func (s *TFIDF) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.TermFreq
}

func (s *TFIDF) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	n := float64(collection.CollectionSize)
	tf := float64(term.TermFreq)
	if tf <= 0 {
		tf = 1
	}
	s.idf = math.Log(n/tf) + 1
	if s.idf < 0 {
		s.idf = 0
	}
	s.max = s.factor * s.idf * float64(term.WDFUpperBound)
}

func (s *TFIDF) GetSumPart(wdf uint32, _ uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.idf * float64(wdf))
}

func (s *TFIDF) GetMaxPart() float64 { return clamp(s.max) }

func (s *TFIDF) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *TFIDF) GetMaxExtra() float64 { return 0 }

func (s *TFIDF) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("tfidf", "expects no parameters")
	}
	return &TFIDF{}, nil
}

// Boolean assigns every matching document the same, term-independent
// contribution: it is used for pure filtering queries where only set
// membership matters, never term frequency.
type Boolean struct {
	factor float64
}

// NewBoolean returns a Boolean scheme.
func NewBoolean() *Boolean { return &Boolean{} }

func (s *Boolean) Name() string { return "boolean" }

func (s *Boolean) Clone() Scheme { return &Boolean{} }

func (s *Boolean) Serialise() []byte { return nil }

func (s *Boolean) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("boolean", 0, len(data))
	}
	return &Boolean{}, nil
}

func (s *Boolean) NeedStat() stats.Flags { return 0 }

func (s *Boolean) Init(_ stats.CollectionStats, _ stats.TermStats, factor float64) {
	s.factor = factor
}

func (s *Boolean) GetSumPart(uint32, uint64, uint32, uint32) float64 { return clamp(s.factor) }

func (s *Boolean) GetMaxPart() float64 { return clamp(s.factor) }

func (s *Boolean) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *Boolean) GetMaxExtra() float64 { return 0 }

func (s *Boolean) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("boolean", "expects no parameters")
	}
	return &Boolean{}, nil
}

// Coord scores by coordination level: each matching term contributes a
// constant unit, so a combinator summing children's weights naturally
// produces "number of matching query terms" as the total score.
type Coord struct {
	factor float64
}

// NewCoord returns a Coord scheme.
func NewCoord() *Coord { return &Coord{} }

func (s *Coord) Name() string { return "coord" }

func (s *Coord) Clone() Scheme { return &Coord{} }

func (s *Coord) Serialise() []byte { return nil }

func (s *Coord) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("coord", 0, len(data))
	}
	return &Coord{}, nil
}

func (s *Coord) NeedStat() stats.Flags { return 0 }

func (s *Coord) Init(_ stats.CollectionStats, _ stats.TermStats, factor float64) {
	s.factor = factor
}

func (s *Coord) GetSumPart(wdf uint32, _ uint64, _ uint32, _ uint32) float64 {
	if wdf == 0 {
		return 0
	}
	return clamp(s.factor)
}

func (s *Coord) GetMaxPart() float64 { return clamp(s.factor) }

func (s *Coord) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *Coord) GetMaxExtra() float64 { return 0 }

func (s *Coord) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("coord", "expects no parameters")
	}
	return &Coord{}, nil
}
