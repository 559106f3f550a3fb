package weight

import (
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// lmSmoothing is shared plumbing for the four language-model schemes:
// each estimates P(term|doc) with a different smoothing strategy against
// the collection model P(term|collection) = collfreq/total_length, then
// scores with log(P(term|doc)/P(term|collection)) so an absent term
// contributes zero rather than a large negative log-probability.
type lmSmoothing struct {
	factor   float64
	collProb float64
	wdfUpper uint32
	max      float64
}

func (l *lmSmoothing) initCollProb(collection stats.CollectionStats, term stats.TermStats) {
	if collection.TotalLength == 0 {
		l.collProb = 0
		return
	}
	l.collProb = float64(term.CollFreq) / float64(collection.TotalLength)
}

// JelinekMercer linearly interpolates the document and collection
// models with a fixed mixing parameter lambda.
type JelinekMercer struct {
	lmSmoothing
	spec   paramSpec
	lambda float64
}

var jmSpec = paramSpec{schemeName: "jelinek-mercer", names: []string{"lambda"}, defaults: []float64{0.15}}

// NewJelinekMercer returns a Jelinek-Mercer scheme with default lambda.
func NewJelinekMercer() *JelinekMercer {
	d := jmSpec.fresh()
	return &JelinekMercer{spec: jmSpec, lambda: d[0]}
}

func (s *JelinekMercer) Name() string { return "jelinek-mercer" }

func (s *JelinekMercer) Clone() Scheme { return &JelinekMercer{spec: s.spec, lambda: s.lambda} }

func (s *JelinekMercer) Serialise() []byte { return s.spec.serialise([]float64{s.lambda}) }

func (s *JelinekMercer) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &JelinekMercer{spec: s.spec, lambda: v[0]}, nil
}

func (s *JelinekMercer) NeedStat() stats.Flags {
	return stats.CollFreq | stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *JelinekMercer) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 || doclen == 0 {
		return 0
	}
	docProb := float64(wdf) / float64(doclen)
	mixed := s.lambda*docProb + (1-s.lambda)*s.collProb
	if mixed <= 0 || s.collProb <= 0 {
		return 0
	}
	return log2(mixed / s.collProb)
}

func (s *JelinekMercer) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.wdfUpper = term.WDFUpperBound
	s.initCollProb(collection, term)
	if collection.DocLenMin == 0 {
		s.max = clamp(s.factor * s.raw(s.wdfUpper, 1))
		return
	}
	s.max = clamp(s.factor * s.raw(s.wdfUpper, collection.DocLenMin))
}

func (s *JelinekMercer) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.raw(wdf, doclen))
}

func (s *JelinekMercer) GetMaxPart() float64 { return clamp(s.max) }

func (s *JelinekMercer) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *JelinekMercer) GetMaxExtra() float64 { return 0 }

func (s *JelinekMercer) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &JelinekMercer{spec: s.spec, lambda: v[0]}, nil
}

// Dirichlet smooths with a pseudo-document-count prior mu, letting
// short documents lean more heavily on the collection model than long
// ones do.
type Dirichlet struct {
	lmSmoothing
	spec paramSpec
	mu   float64
}

var dirichletSpec = paramSpec{schemeName: "dirichlet", names: []string{"mu"}, defaults: []float64{2000}}

// NewDirichlet returns a Dirichlet-smoothed LM scheme with default mu.
func NewDirichlet() *Dirichlet {
	d := dirichletSpec.fresh()
	return &Dirichlet{spec: dirichletSpec, mu: d[0]}
}

func (s *Dirichlet) Name() string { return "dirichlet" }

func (s *Dirichlet) Clone() Scheme { return &Dirichlet{spec: s.spec, mu: s.mu} }

func (s *Dirichlet) Serialise() []byte { return s.spec.serialise([]float64{s.mu}) }

func (s *Dirichlet) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &Dirichlet{spec: s.spec, mu: v[0]}, nil
}

func (s *Dirichlet) NeedStat() stats.Flags {
	return stats.CollFreq | stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *Dirichlet) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 || s.collProb <= 0 {
		return 0
	}
	dl := float64(doclen)
	num := float64(wdf) + s.mu*s.collProb
	denom := dl + s.mu
	if denom <= 0 {
		return 0
	}
	docProb := num / denom
	if docProb <= 0 {
		return 0
	}
	return log2(docProb / s.collProb)
}

func (s *Dirichlet) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.wdfUpper = term.WDFUpperBound
	s.initCollProb(collection, term)
	lower := collection.DocLenMin
	if lower == 0 {
		lower = 1
	}
	s.max = clamp(s.factor * s.raw(s.wdfUpper, lower))
}

func (s *Dirichlet) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.raw(wdf, doclen))
}

func (s *Dirichlet) GetMaxPart() float64 { return clamp(s.max) }

func (s *Dirichlet) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *Dirichlet) GetMaxExtra() float64 { return 0 }

func (s *Dirichlet) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &Dirichlet{spec: s.spec, mu: v[0]}, nil
}

// AbsoluteDiscount subtracts a fixed discount delta from every observed
// count and redistributes the shaved mass proportional to the
// collection model.
type AbsoluteDiscount struct {
	lmSmoothing
	spec  paramSpec
	delta float64
}

var absDiscSpec = paramSpec{schemeName: "absolute-discount", names: []string{"delta"}, defaults: []float64{0.7}}

// NewAbsoluteDiscount returns an absolute-discounting LM scheme with
// default delta.
func NewAbsoluteDiscount() *AbsoluteDiscount {
	d := absDiscSpec.fresh()
	return &AbsoluteDiscount{spec: absDiscSpec, delta: d[0]}
}

func (s *AbsoluteDiscount) Name() string { return "absolute-discount" }

func (s *AbsoluteDiscount) Clone() Scheme {
	return &AbsoluteDiscount{spec: s.spec, delta: s.delta}
}

func (s *AbsoluteDiscount) Serialise() []byte { return s.spec.serialise([]float64{s.delta}) }

func (s *AbsoluteDiscount) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &AbsoluteDiscount{spec: s.spec, delta: v[0]}, nil
}

func (s *AbsoluteDiscount) NeedStat() stats.Flags {
	return stats.CollFreq | stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax | stats.UniqueTerms
}

func (s *AbsoluteDiscount) raw(wdf uint32, doclen uint64, uniqueTerms uint32) float64 {
	if wdf == 0 || s.collProb <= 0 || doclen == 0 {
		return 0
	}
	dl := float64(doclen)
	discounted := float64(wdf) - s.delta
	if discounted < 0 {
		discounted = 0
	}
	sigma := s.delta * float64(uniqueTerms) / dl
	docProb := discounted/dl + sigma*s.collProb
	if docProb <= 0 {
		return 0
	}
	return log2(docProb / s.collProb)
}

func (s *AbsoluteDiscount) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.wdfUpper = term.WDFUpperBound
	s.initCollProb(collection, term)
	lower := collection.DocLenMin
	if lower == 0 {
		lower = 1
	}
	ut := collection.UniqueTermsMax
	if ut == 0 {
		ut = 1
	}
	s.max = clamp(s.factor * s.raw(s.wdfUpper, lower, ut))
}

func (s *AbsoluteDiscount) GetSumPart(wdf uint32, doclen uint64, uniqueTerms uint32, _ uint32) float64 {
	return clamp(s.factor * s.raw(wdf, doclen, uniqueTerms))
}

func (s *AbsoluteDiscount) GetMaxPart() float64 { return clamp(s.max) }

func (s *AbsoluteDiscount) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *AbsoluteDiscount) GetMaxExtra() float64 { return 0 }

func (s *AbsoluteDiscount) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &AbsoluteDiscount{spec: s.spec, delta: v[0]}, nil
}

// TwoStage composes Jelinek-Mercer document smoothing with a Dirichlet
// query-side stage, giving a scheme with both a fixed interpolation
// weight and a length-adaptive prior.
type TwoStage struct {
	lmSmoothing
	spec         paramSpec
	lambda, mu   float64
}

var twoStageSpec = paramSpec{schemeName: "two-stage", names: []string{"lambda", "mu"}, defaults: []float64{0.15, 2000}}

// NewTwoStage returns a two-stage smoothed LM scheme with default
// parameters.
func NewTwoStage() *TwoStage {
	d := twoStageSpec.fresh()
	return &TwoStage{spec: twoStageSpec, lambda: d[0], mu: d[1]}
}

func (s *TwoStage) Name() string { return "two-stage" }

func (s *TwoStage) Clone() Scheme { return &TwoStage{spec: s.spec, lambda: s.lambda, mu: s.mu} }

func (s *TwoStage) Serialise() []byte { return s.spec.serialise([]float64{s.lambda, s.mu}) }

func (s *TwoStage) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &TwoStage{spec: s.spec, lambda: v[0], mu: v[1]}, nil
}

func (s *TwoStage) NeedStat() stats.Flags {
	return stats.CollFreq | stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *TwoStage) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 || s.collProb <= 0 {
		return 0
	}
	dl := float64(doclen)
	denom := dl + s.mu
	if denom <= 0 {
		return 0
	}
	stage1 := (float64(wdf) + s.mu*s.collProb) / denom
	mixed := s.lambda*stage1 + (1-s.lambda)*s.collProb
	if mixed <= 0 {
		return 0
	}
	return log2(mixed / s.collProb)
}

func (s *TwoStage) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.wdfUpper = term.WDFUpperBound
	s.initCollProb(collection, term)
	lower := collection.DocLenMin
	if lower == 0 {
		lower = 1
	}
	s.max = clamp(s.factor * s.raw(s.wdfUpper, lower))
}

func (s *TwoStage) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return clamp(s.factor * s.raw(wdf, doclen))
}

func (s *TwoStage) GetMaxPart() float64 { return clamp(s.max) }

func (s *TwoStage) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *TwoStage) GetMaxExtra() float64 { return 0 }

func (s *TwoStage) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &TwoStage{spec: s.spec, lambda: v[0], mu: v[1]}, nil
}
