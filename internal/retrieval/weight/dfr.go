package weight

import (
	"math"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

const ln2 = math.Ln2

func log2(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x) / ln2
}

// PL2 is the Poisson/Laplace member of the Divergence From Randomness
// family: term frequency is modelled against a Poisson random model and
// normalised with a Laplace after-effect.
type PL2 struct {
	spec         paramSpec
	c            float64
	factor       float64
	avgLen       float64
	mu           float64
	p1, p2       float64
	nonDiscrim   bool
	wdfUpper     uint32
	doclenLower  uint64
	doclenUpper  uint64
	max          float64
}

var pl2Spec = paramSpec{schemeName: "pl2", names: []string{"c"}, defaults: []float64{1.0}}

// NewPL2 returns a PL2 scheme with Xapian's default c.
func NewPL2() *PL2 {
	d := pl2Spec.fresh()
	return &PL2{spec: pl2Spec, c: d[0]}
}

func (s *PL2) Name() string { return "pl2" }

func (s *PL2) Clone() Scheme { return &PL2{spec: s.spec, c: s.c} }

func (s *PL2) Serialise() []byte { return s.spec.serialise([]float64{s.c}) }

func (s *PL2) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &PL2{spec: s.spec, c: v[0]}, nil
}

func (s *PL2) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.CollFreq | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *PL2) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.avgLen = collection.AverageLength()
	s.wdfUpper = term.WDFUpperBound
	s.doclenLower = collection.DocLenMin
	s.doclenUpper = collection.DocLenMax
	if s.avgLen == 0 {
		s.mu = 0
	} else {
		s.mu = float64(term.CollFreq) / float64(collection.CollectionSize)
	}
	if s.wdfUpper == 0 || s.mu > 1 {
		s.nonDiscrim = true
		s.max = 0
		return
	}
	s.p1 = s.mu/ln2 + 0.5*log2(2*math.Pi)
	s.p2 = log2(s.mu) + 1/ln2
	s.max = s.computeMaxPart()
}

func (s *PL2) wdfn(wdf uint32, doclen uint64) float64 {
	cl := s.c * s.avgLen
	if doclen == 0 {
		doclen = 1
	}
	return float64(wdf) * log2(1+cl/float64(doclen))
}

func (s *PL2) pTerm(wdfn float64) float64 {
	if wdfn <= 0 {
		return 0
	}
	return s.p1 + (wdfn+0.5)*log2(wdfn) - s.p2*wdfn
}

func (s *PL2) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	if s.nonDiscrim || wdf == 0 {
		return 0
	}
	wn := s.wdfn(wdf, doclen)
	return clamp(s.factor * (s.pTerm(wn) / (wn + 1)))
}

func (s *PL2) computeMaxPart() float64 {
	cl := s.c * s.avgLen
	wnUpper := float64(s.wdfUpper) * log2(1+cl/math.Max(float64(s.wdfUpper), math.Max(1, float64(s.doclenLower))))
	wnLower := log2(1 + cl/math.Max(1, float64(s.doclenUpper)))
	aAt := func(wn float64) float64 {
		if wn <= 0 {
			return 0
		}
		return (wn + 0.5) * log2(wn) / (wn + 1)
	}
	bAt := func(wn float64) float64 {
		return (s.p1 - s.p2*wn) / (wn + 1)
	}
	aMax := math.Max(aAt(wnUpper), aAt(wnLower))
	var bMax float64
	if s.p1+s.p2 > 0 {
		bMax = bAt(wnUpper)
	} else {
		bMax = bAt(wnLower)
	}
	return clamp(s.factor * (aMax + bMax))
}

func (s *PL2) GetMaxPart() float64 { return clamp(s.max) }

func (s *PL2) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *PL2) GetMaxExtra() float64 { return 0 }

func (s *PL2) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &PL2{spec: s.spec, c: v[0]}, nil
}

// PL2Plus is PL2 with a delta smoothing term added, per Amati/He/Ounis's
// lower-bounding variant: it keeps documents that lack a term from
// scoring above ones that mention it once with unfavourable length.
type PL2Plus struct {
	spec        paramSpec
	c, delta    float64
	factor      float64
	avgLen      float64
	mu          float64
	p1, p2      float64
	dw          float64
	nonDiscrim  bool
	wdfUpper    uint32
	doclenLower uint64
	doclenUpper uint64
	max         float64
}

var pl2PlusSpec = paramSpec{schemeName: "pl2+", names: []string{"c", "delta"}, defaults: []float64{1.0, 0.8}}

// NewPL2Plus returns a PL2+ scheme with Xapian's default c and delta.
func NewPL2Plus() *PL2Plus {
	d := pl2PlusSpec.fresh()
	return &PL2Plus{spec: pl2PlusSpec, c: d[0], delta: d[1]}
}

func (s *PL2Plus) Name() string { return "pl2+" }

func (s *PL2Plus) Clone() Scheme { return &PL2Plus{spec: s.spec, c: s.c, delta: s.delta} }

func (s *PL2Plus) Serialise() []byte { return s.spec.serialise([]float64{s.c, s.delta}) }

func (s *PL2Plus) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &PL2Plus{spec: s.spec, c: v[0], delta: v[1]}, nil
}

func (s *PL2Plus) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.CollFreq | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

// Init implements the PL2+ derivation given verbatim: non-discriminative
// terms (wdf_upper_bound == 0 or mu > 1) contribute and bound to zero.
func (s *PL2Plus) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.factor = factor
	s.avgLen = collection.AverageLength()
	s.wdfUpper = term.WDFUpperBound
	s.doclenLower = collection.DocLenMin
	s.doclenUpper = collection.DocLenMax
	if s.avgLen == 0 {
		s.mu = 0
	} else {
		s.mu = float64(term.CollFreq) / float64(collection.CollectionSize)
	}
	if s.wdfUpper == 0 || s.mu > 1 {
		s.nonDiscrim = true
		s.max = 0
		return
	}
	s.p1 = s.mu/ln2 + 0.5*log2(2*math.Pi)
	s.p2 = log2(s.mu) + 1/ln2
	s.dw = (s.p1 + (s.delta+0.5)*log2(s.delta) - s.p2*s.delta) / (s.delta + 1)
	s.max = s.computeMaxPart()
}

func (s *PL2Plus) wdfn(wdf uint32, doclen uint64) float64 {
	cl := s.c * s.avgLen
	if doclen == 0 {
		doclen = 1
	}
	return float64(wdf) * log2(1+cl/float64(doclen))
}

func (s *PL2Plus) pTerm(wdfn float64) float64 {
	if wdfn <= 0 {
		return 0
	}
	return s.p1 + (wdfn+0.5)*log2(wdfn) - s.p2*wdfn
}

// GetSumPart returns factor * max(0, P(wdfn)/(wdfn+1) + dw). A wdf of
// zero contributes 0 (no dw floor), as does a non-discriminative term.
func (s *PL2Plus) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	if s.nonDiscrim {
		return 0
	}
	if wdf == 0 {
		return 0
	}
	wn := s.wdfn(wdf, doclen)
	return clamp(s.factor * (s.pTerm(wn)/(wn+1) + s.dw))
}

func (s *PL2Plus) computeMaxPart() float64 {
	cl := s.c * s.avgLen
	wnUpper := float64(s.wdfUpper) * log2(1+cl/math.Max(float64(s.wdfUpper), math.Max(1, float64(s.doclenLower))))
	wnLower := log2(1 + cl/math.Max(1, float64(s.doclenUpper)))
	aAt := func(wn float64) float64 {
		if wn <= 0 {
			return 0
		}
		return (wn + 0.5) * log2(wn) / (wn + 1)
	}
	bAt := func(wn float64) float64 {
		return (s.p1 - s.p2*wn) / (wn + 1)
	}
	aMax := math.Max(aAt(wnUpper), aAt(wnLower))
	var bMax float64
	if s.p1+s.p2 > 0 {
		bMax = bAt(wnUpper)
	} else {
		bMax = bAt(wnLower)
	}
	return clamp(s.factor * (aMax + bMax + s.dw))
}

func (s *PL2Plus) GetMaxPart() float64 { return clamp(s.max) }

func (s *PL2Plus) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *PL2Plus) GetMaxExtra() float64 { return 0 }

func (s *PL2Plus) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &PL2Plus{spec: s.spec, c: v[0], delta: v[1]}, nil
}

// dfrGridScheme is shared plumbing for DFR family siblings whose raw
// score, unlike PL2/PL2+, doesn't reduce to a single normalised
// variable with an easy sign argument for its derivative: BB2 in
// particular has a genuine interior peak in wdf, not just a boundary
// max. Each of these computes its raw score from a documented,
// standard DFR building block and bounds it with gridMaximise's
// golden-section search over that peak instead of a hand-derived
// closed form.
type dfrGridScheme struct {
	spec        paramSpec
	factor      float64
	avgLen      float64
	mu          float64
	n           float64
	tf          float64
	wdfUpper    uint32
	doclenLower uint64
	doclenUpper uint64
	max         float64
	score       func(wdf uint32, doclen uint64) float64
}

func (d *dfrGridScheme) initCommon(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	d.factor = factor
	d.avgLen = collection.AverageLength()
	d.n = float64(collection.CollectionSize)
	d.tf = float64(term.TermFreq)
	if d.avgLen != 0 {
		d.mu = float64(term.CollFreq) / float64(collection.CollectionSize)
	}
	d.wdfUpper = term.WDFUpperBound
	d.doclenLower = collection.DocLenMin
	d.doclenUpper = collection.DocLenMax
}

func (d *dfrGridScheme) finishMax() {
	if d.score == nil {
		return
	}
	d.max = gridMaximise(d.score, d.wdfUpper, d.doclenLower, d.doclenUpper)
}

// BB2 is the Bose-Einstein / Binomial DFR sibling.
type BB2 struct {
	dfrGridScheme
}

// NewBB2 returns a BB2 scheme. It takes no parameters.
func NewBB2() *BB2 { return &BB2{dfrGridScheme{spec: paramSpec{schemeName: "bb2"}}} }

func (s *BB2) Name() string { return "bb2" }

func (s *BB2) Clone() Scheme { return NewBB2() }

func (s *BB2) Serialise() []byte { return nil }

func (s *BB2) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("bb2", 0, len(data))
	}
	return NewBB2(), nil
}

func (s *BB2) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.CollFreq | stats.TermFreq | stats.AverageLength |
		stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *BB2) wdfn(wdf uint32, doclen uint64) float64 {
	if s.avgLen == 0 || doclen == 0 {
		return float64(wdf)
	}
	return float64(wdf) * log2(1+s.avgLen/float64(doclen))
}

func (s *BB2) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 {
		return 0
	}
	f := s.tf
	if f <= 0 {
		f = 1
	}
	wn := s.wdfn(wdf, doclen)
	logTerm := log2((f + 1) / (wn + 1))
	return clamp(s.factor * wn * logTerm)
}

func (s *BB2) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	s.score = s.raw
	s.finishMax()
}

func (s *BB2) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *BB2) GetMaxPart() float64 { return clamp(s.max) }

func (s *BB2) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *BB2) GetMaxExtra() float64 { return 0 }

func (s *BB2) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("bb2", "expects no parameters")
	}
	return NewBB2(), nil
}

// InL2 is the Inverse-document-frequency / Laplace DFR sibling.
type InL2 struct {
	dfrGridScheme
	c float64
}

var inl2Spec = paramSpec{schemeName: "inl2", names: []string{"c"}, defaults: []float64{1.0}}

// NewInL2 returns an InL2 scheme with default c.
func NewInL2() *InL2 {
	d := inl2Spec.fresh()
	return &InL2{dfrGridScheme: dfrGridScheme{spec: inl2Spec}, c: d[0]}
}

func (s *InL2) Name() string { return "inl2" }

func (s *InL2) Clone() Scheme { return &InL2{dfrGridScheme: dfrGridScheme{spec: s.spec}, c: s.c} }

func (s *InL2) Serialise() []byte { return s.spec.serialise([]float64{s.c}) }

func (s *InL2) Unserialise(data []byte) (Scheme, error) {
	v, err := s.spec.unserialise(data)
	if err != nil {
		return nil, err
	}
	return &InL2{dfrGridScheme: dfrGridScheme{spec: s.spec}, c: v[0]}, nil
}

func (s *InL2) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.TermFreq | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *InL2) wdfn(wdf uint32, doclen uint64) float64 {
	cl := s.c * s.avgLen
	if doclen == 0 {
		doclen = 1
	}
	return float64(wdf) * log2(1+cl/float64(doclen))
}

func (s *InL2) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 {
		return 0
	}
	wn := s.wdfn(wdf, doclen)
	n := s.n
	if n <= 0 {
		n = 1
	}
	idf := log2((n + 1) / math.Max(s.tf, 1))
	return clamp(s.factor * wn / (wn + 1) * idf)
}

func (s *InL2) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	s.score = s.raw
	s.finishMax()
}

func (s *InL2) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *InL2) GetMaxPart() float64 { return clamp(s.max) }

func (s *InL2) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *InL2) GetMaxExtra() float64 { return 0 }

func (s *InL2) CreateFromParameters(text string) (Scheme, error) {
	v, err := s.spec.parse(text)
	if err != nil {
		return nil, err
	}
	return &InL2{dfrGridScheme: dfrGridScheme{spec: s.spec}, c: v[0]}, nil
}

// IfB2 is the inverse term-frequency / Bernoulli DFR sibling.
type IfB2 struct {
	dfrGridScheme
}

// NewIfB2 returns an IfB2 scheme. It takes no parameters.
func NewIfB2() *IfB2 { return &IfB2{dfrGridScheme{spec: paramSpec{schemeName: "ifb2"}}} }

func (s *IfB2) Name() string { return "ifb2" }

func (s *IfB2) Clone() Scheme { return NewIfB2() }

func (s *IfB2) Serialise() []byte { return nil }

func (s *IfB2) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("ifb2", 0, len(data))
	}
	return NewIfB2(), nil
}

func (s *IfB2) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.CollFreq | stats.TermFreq | stats.AverageLength |
		stats.DocLength | stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *IfB2) wdfn(wdf uint32, doclen uint64) float64 {
	if s.avgLen == 0 || doclen == 0 {
		return float64(wdf)
	}
	return float64(wdf) * log2(1+s.avgLen/float64(doclen))
}

func (s *IfB2) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 {
		return 0
	}
	wn := s.wdfn(wdf, doclen)
	n := s.n
	if n <= 0 {
		n = 1
	}
	tn := math.Max(s.tf, 1)
	f := math.Max(s.mu*n, tn)
	invTF := (n + 1) / (f + 0.5)
	return clamp(s.factor * wn * log2(invTF))
}

func (s *IfB2) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	s.score = s.raw
	s.finishMax()
}

func (s *IfB2) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *IfB2) GetMaxPart() float64 { return clamp(s.max) }

func (s *IfB2) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *IfB2) GetMaxExtra() float64 { return 0 }

func (s *IfB2) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("ifb2", "expects no parameters")
	}
	return NewIfB2(), nil
}

// IneB2 is the inverse expected document frequency / Bernoulli DFR
// sibling.
type IneB2 struct {
	dfrGridScheme
}

// NewIneB2 returns an IneB2 scheme. It takes no parameters.
func NewIneB2() *IneB2 { return &IneB2{dfrGridScheme{spec: paramSpec{schemeName: "ineb2"}}} }

func (s *IneB2) Name() string { return "ineb2" }

func (s *IneB2) Clone() Scheme { return NewIneB2() }

func (s *IneB2) Serialise() []byte { return nil }

func (s *IneB2) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("ineb2", 0, len(data))
	}
	return NewIneB2(), nil
}

func (s *IneB2) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.CollFreq | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *IneB2) wdfn(wdf uint32, doclen uint64) float64 {
	if s.avgLen == 0 || doclen == 0 {
		return float64(wdf)
	}
	return float64(wdf) * log2(1+s.avgLen/float64(doclen))
}

func (s *IneB2) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 {
		return 0
	}
	wn := s.wdfn(wdf, doclen)
	ne := s.n * (1 - math.Pow(1-1/s.n, math.Max(s.mu*s.n, 1)))
	if ne <= 0 {
		ne = 1
	}
	return clamp(s.factor * wn * log2((s.n+1)/ne))
}

func (s *IneB2) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	if s.n <= 1 {
		s.n = 2
	}
	s.score = s.raw
	s.finishMax()
}

func (s *IneB2) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *IneB2) GetMaxPart() float64 { return clamp(s.max) }

func (s *IneB2) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *IneB2) GetMaxExtra() float64 { return 0 }

func (s *IneB2) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("ineb2", "expects no parameters")
	}
	return NewIneB2(), nil
}

// DLH is a parameter-free DFR scheme based on the Laplace after-effect
// and the hypergeometric term-frequency distribution.
type DLH struct {
	dfrGridScheme
}

// NewDLH returns a DLH scheme. It takes no parameters.
func NewDLH() *DLH { return &DLH{dfrGridScheme{spec: paramSpec{schemeName: "dlh"}}} }

func (s *DLH) Name() string { return "dlh" }

func (s *DLH) Clone() Scheme { return NewDLH() }

func (s *DLH) Serialise() []byte { return nil }

func (s *DLH) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("dlh", 0, len(data))
	}
	return NewDLH(), nil
}

func (s *DLH) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *DLH) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 || doclen == 0 {
		return 0
	}
	f := float64(wdf)
	dl := float64(doclen)
	if f >= dl {
		f = dl * 0.999
	}
	frac := f / dl
	term := f*log2((f/dl)*(s.avgLen/math.Max(f, 1))+1) + 0.5*log2(2*math.Pi*f*(1-frac))
	return clamp(s.factor * term / (f + 0.5))
}

func (s *DLH) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	s.score = s.raw
	s.finishMax()
}

func (s *DLH) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *DLH) GetMaxPart() float64 { return clamp(s.max) }

func (s *DLH) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *DLH) GetMaxExtra() float64 { return 0 }

func (s *DLH) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("dlh", "expects no parameters")
	}
	return NewDLH(), nil
}

// DPH is a parameter-free DFR scheme combining the hypergeometric
// distribution with Popper's normalisation.
type DPH struct {
	dfrGridScheme
}

// NewDPH returns a DPH scheme. It takes no parameters.
func NewDPH() *DPH { return &DPH{dfrGridScheme{spec: paramSpec{schemeName: "dph"}}} }

func (s *DPH) Name() string { return "dph" }

func (s *DPH) Clone() Scheme { return NewDPH() }

func (s *DPH) Serialise() []byte { return nil }

func (s *DPH) Unserialise(data []byte) (Scheme, error) {
	if len(data) != 0 {
		return nil, serialisationErr("dph", 0, len(data))
	}
	return NewDPH(), nil
}

func (s *DPH) NeedStat() stats.Flags {
	return stats.CollectionSize | stats.AverageLength | stats.DocLength |
		stats.DocLengthMin | stats.DocLengthMax | stats.WDFMax
}

func (s *DPH) raw(wdf uint32, doclen uint64) float64 {
	if wdf == 0 || doclen == 0 {
		return 0
	}
	f := float64(wdf)
	dl := float64(doclen)
	if f >= dl {
		f = dl * 0.999
	}
	norm := f * (1 - f/dl)
	if norm <= 0 {
		norm = 1e-9
	}
	term := (f * log2(f*s.avgLen/dl)) + 0.5*log2(2*math.Pi*norm) - log2(math.E)*(dl-f)/dl
	return clamp(s.factor * term / (f + 1))
}

func (s *DPH) Init(collection stats.CollectionStats, term stats.TermStats, factor float64) {
	if factor == 0 {
		return
	}
	s.initCommon(collection, term, factor)
	s.score = s.raw
	s.finishMax()
}

func (s *DPH) GetSumPart(wdf uint32, doclen uint64, _ uint32, _ uint32) float64 {
	return s.raw(wdf, doclen)
}

func (s *DPH) GetMaxPart() float64 { return clamp(s.max) }

func (s *DPH) GetSumExtra(uint64, uint32) float64 { return 0 }

func (s *DPH) GetMaxExtra() float64 { return 0 }

func (s *DPH) CreateFromParameters(text string) (Scheme, error) {
	if text != "" {
		return nil, invalidParamErr("dph", "expects no parameters")
	}
	return NewDPH(), nil
}
