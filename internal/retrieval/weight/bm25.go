package weight

import (
	"math"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// BM25 is the Robertson/Sparck-Jones probabilistic scheme, in the
// two-parameter form Xapian ships as its default (k1 controls term
// frequency saturation, b controls length normalisation strength).
type BM25 struct {
	spec   paramSpec
	k1, b  float64
	idf    float64
	avgLen float64
	factor float64
	max    float64
}

var bm25Spec = paramSpec{schemeName: "bm25", names: []string{"k1", "b"}, defaults: []float64{1.2, 0.75}}

// NewBM25 returns a BM25 scheme with Xapian's default parameters.
func NewBM25() *BM25 {
	d := bm25Spec.fresh()
	return &BM25{spec: bm25Spec, k1: d[0], b: d[1]}
}

func (s *BM25) Name() string { return "bm25" }

func (s *BM25) Clone() Scheme { return &BM25{spec: s.spec, k1: s.k1, b: s.b} }

func (s *BM25) Serialise() []byte { return s.spec.serialise([]float64{s.k1, s.b}) }

func (s *BM25) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &BM25{spec: s.spec, k1: v[0], b: v[1]}, nil
}

func (s *BM25) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.TermFreq | stats.AverageLength | stats.DocLength
}

func (s *BM25) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.avgLen = collection.AverageLength()
	n := float64(collection.CollectionSize)
	tf := float64(term.TermFreq)
	s.idf = math.Log(1 + (n-tf+0.5)/(tf+0.5))
	s.max = s.factor * s.idf * s.tfNorm(float64(term.WDFUpperBound), float64(collection.DocLenMin))
}

func (s *BM25) tfNorm(wdf, doclen float64) float64 {
	if s.avgLen == 0 {
		return 0
	}
	lengthRatio := doclen / s.avgLen
	denom := wdf + s.k1*(1-s.b+s.b*lengthRatio)
	if denom == 0 {
		return 0
	}
	return wdf * (s.k1 + 1) / denom
}

func (s *BM25) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.idf * s.tfNorm(float64(wdf), float64(doclen)))
}

func (s *BM25) GetMaxPart() float64 { return clamp(s.max) }

func (s *BM25) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *BM25) GetMaxExtra() float64 { return 0 }

func (s *BM25) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &BM25{spec: s.spec, k1: v[0], b: v[1]}, nil
}

// BM25Plus is BM25 with Lv & Zhai's lower-bounding delta term, which
// keeps very long documents containing the term from scoring below a
// document that never mentions it.
type BM25Plus struct {
	spec        paramSpec
	k1, b, delt float64
	idf         float64
	avgLen      float64
	factor      float64
	max         float64
}

var bm25PlusSpec = paramSpec{schemeName: "bm25+", names: []string{"k1", "b", "delta"}, defaults: []float64{1.2, 0.75, 1.0}}

// NewBM25Plus returns a BM25+ scheme with default parameters.
func NewBM25Plus() *BM25Plus {
	d := bm25PlusSpec.fresh()
	return &BM25Plus{spec: bm25PlusSpec, k1: d[0], b: d[1], delt: d[2]}
}

func (s *BM25Plus) Name() string { return "bm25+" }

func (s *BM25Plus) Clone() Scheme {
	return &BM25Plus{spec: s.spec, k1: s.k1, b: s.b, delt: s.delt}
}

func (s *BM25Plus) Serialise() []byte {
	return s.spec.serialise([]float64{s.k1, s.b, s.delt})
}

func (s *BM25Plus) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &BM25Plus{spec: s.spec, k1: v[0], b: v[1], delt: v[2]}, nil
}

func (s *BM25Plus) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.TermFreq | stats.AverageLength | stats.DocLength
}

func (s *BM25Plus) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.avgLen = collection.AverageLength()
	n := float64(collection.CollectionSize)
	tf := float64(term.TermFreq)
	s.idf = math.Log(1 + (n-tf+0.5)/(tf+0.5))
	s.max = s.factor * s.idf * s.tfNormPlus(float64(term.WDFUpperBound), float64(collection.DocLenMin))
}

func (s *BM25Plus) tfNormPlus(wdf, doclen float64) float64 {
	if s.avgLen == 0 {
		return s.delt
	}
	lengthRatio := doclen / s.avgLen
	denom := wdf + s.k1*(1-s.b+s.b*lengthRatio)
	if denom == 0 {
		return s.delt
	}
	return wdf*(s.k1+1)/denom + s.delt
}

func (s *BM25Plus) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.idf * s.tfNormPlus(float64(wdf), float64(doclen)))
}

func (s *BM25Plus) GetMaxPart() float64 { return clamp(s.max) }

func (s *BM25Plus) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *BM25Plus) GetMaxExtra() float64 { return 0 }

func (s *BM25Plus) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &BM25Plus{spec: s.spec, k1: v[0], b: v[1], delt: v[2]}, nil
}
