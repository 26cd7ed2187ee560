package jpeg

import "math"

// The inverse transform runs in fixed point with idctFracBits fractional
// bits. The dequantization table carries the AAN row/column scale and the
// 2^idctFracBits factor; the final shift also removes the 2-D gain of 8.
const (
	idctFracBits = 14
	idctShift    = idctFracBits + 3
)

// aanScale[k] = sqrt(2) * cos(k*pi/16), aanScale[0] = 1.
var aanScale = [8]float64{
	1.0, 1.387039845, 1.306562965, 1.175875602,
	1.0, 0.785694958, 0.541196100, 0.275899379,
}

func fix(x float64) int64 {
	return int64(math.Round(x * (1 << idctFracBits)))
}

var (
	fix1414 = fix(1.414213562)
	fix1847 = fix(1.847759065)
	fix1082 = fix(1.082392200)
	fix2613 = fix(2.613125930)
)

func mulFix(x, c int64) int64 {
	return (x*c + 1<<(idctFracBits-1)) >> idctFracBits
}

// quantTable is one DQT table with its derived transform tables.
type quantTable struct {
	values    [blockSize]uint16 // natural order
	precision int               // Pq: 0 for 8-bit entries, 1 for 16-bit

	decode [blockSize]int64   // step * aan(r) * aan(c) * 2^idctFracBits
	encode [blockSize]float64 // 1 / (step * aan(r) * aan(c) * 8)
}

func newQuantTable(values [blockSize]uint16) *quantTable {
	q := &quantTable{values: values}
	for _, v := range values {
		if v > 255 {
			q.precision = 1
		}
	}
	q.rebuild()
	return q
}

func (q *quantTable) rebuild() {
	for i, v := range q.values {
		s := float64(v) * aanScale[i/8] * aanScale[i%8]
		q.decode[i] = int64(math.Round(s * (1 << idctFracBits)))
		q.encode[i] = 1 / (s * 8)
	}
}

// scaledQuant returns a default table scaled to quality (1-100) with the
// libjpeg formula.
func scaledQuant(chroma bool, quality int) *quantTable {
	quality = min(max(quality, 1), 100)
	scale := 200 - quality*2
	if quality < 50 {
		scale = 5000 / quality
	}
	base := defaultQuant[0]
	if chroma {
		base = defaultQuant[1]
	}
	var values [blockSize]uint16
	for i, v := range base {
		x := (int(v)*scale + 50) / 100
		values[i] = uint16(min(max(x, 1), 255))
	}
	return newQuantTable(values)
}

// forwardDCT transforms level-shifted samples into quantized coefficients in
// natural order.
func forwardDCT(block *[blockSize]float64, q *quantTable, coef *[blockSize]int32) {
	var d [8]float64
	for r := 0; r < 8; r++ {
		copy(d[:], block[r*8:r*8+8])
		fdct1D(&d)
		copy(block[r*8:r*8+8], d[:])
	}
	for c := 0; c < 8; c++ {
		for r := 0; r < 8; r++ {
			d[r] = block[r*8+c]
		}
		fdct1D(&d)
		for r := 0; r < 8; r++ {
			block[r*8+c] = d[r]
		}
	}
	for i := range coef {
		v := math.Round(block[i] * q.encode[i])
		coef[i] = int32(min(max(v, -32767), 32767))
	}
}

// fdct1D is the AAN float forward DCT on 8 samples; outputs are scaled by
// 8 * aanScale[k] relative to the orthonormal DCT across both passes.
func fdct1D(d *[8]float64) {
	tmp0 := d[0] + d[7]
	tmp7 := d[0] - d[7]
	tmp1 := d[1] + d[6]
	tmp6 := d[1] - d[6]
	tmp2 := d[2] + d[5]
	tmp5 := d[2] - d[5]
	tmp3 := d[3] + d[4]
	tmp4 := d[3] - d[4]

	// even part
	tmp10 := tmp0 + tmp3
	tmp13 := tmp0 - tmp3
	tmp11 := tmp1 + tmp2
	tmp12 := tmp1 - tmp2
	d[0] = tmp10 + tmp11
	d[4] = tmp10 - tmp11
	z1 := (tmp12 + tmp13) * 0.707106781
	d[2] = tmp13 + z1
	d[6] = tmp13 - z1

	// odd part
	tmp10 = tmp4 + tmp5
	tmp11 = tmp5 + tmp6
	tmp12 = tmp6 + tmp7
	z5 := (tmp10 - tmp12) * 0.382683433
	z2 := 0.541196100*tmp10 + z5
	z4 := 1.306562965*tmp12 + z5
	z3 := tmp11 * 0.707106781
	z11 := tmp7 + z3
	z13 := tmp7 - z3
	d[5] = z13 + z2
	d[3] = z13 - z2
	d[1] = z11 + z4
	d[7] = z11 - z4
}

// inverseDCT dequantizes coef (natural order) and writes spatial samples,
// still centred on zero, to out.
func inverseDCT(coef *[blockSize]int32, q *quantTable, out *[blockSize]int32) {
	ac := int32(0)
	for _, c := range coef[1:] {
		ac |= c
	}
	if ac == 0 {
		v := int32(descale(int64(coef[0]) * q.decode[0]))
		for i := range out {
			out[i] = v
		}
		return
	}

	var ws [blockSize]int64
	var d [8]int64
	for c := 0; c < 8; c++ {
		zero := true
		for r := 0; r < 8; r++ {
			d[r] = int64(coef[r*8+c]) * q.decode[r*8+c]
			if r > 0 && d[r] != 0 {
				zero = false
			}
		}
		if !zero {
			idct1D(&d)
		} else {
			for r := 1; r < 8; r++ {
				d[r] = d[0]
			}
		}
		for r := 0; r < 8; r++ {
			ws[r*8+c] = d[r]
		}
	}
	for r := 0; r < 8; r++ {
		copy(d[:], ws[r*8:r*8+8])
		idct1D(&d)
		for c := 0; c < 8; c++ {
			out[r*8+c] = int32(descale(d[c]))
		}
	}
}

func descale(x int64) int64 {
	return (x + 1<<(idctShift-1)) >> idctShift
}

// idct1D is the fixed-point AAN inverse DCT on 8 dequantized values.
func idct1D(d *[8]int64) {
	// even part
	tmp10 := d[0] + d[4]
	tmp11 := d[0] - d[4]
	tmp13 := d[2] + d[6]
	tmp12 := mulFix(d[2]-d[6], fix1414) - tmp13
	tmp0 := tmp10 + tmp13
	tmp3 := tmp10 - tmp13
	tmp1 := tmp11 + tmp12
	tmp2 := tmp11 - tmp12

	// odd part
	z13 := d[5] + d[3]
	z10 := d[5] - d[3]
	z11 := d[1] + d[7]
	z12 := d[1] - d[7]
	tmp7 := z11 + z13
	tmp11 = mulFix(z11-z13, fix1414)
	z5 := mulFix(z10+z12, fix1847)
	tmp10 = mulFix(z12, fix1082) - z5
	tmp12 = z5 - mulFix(z10, fix2613)
	tmp6 := tmp12 - tmp7
	tmp5 := tmp11 - tmp6
	tmp4 := tmp10 + tmp5

	d[0] = tmp0 + tmp7
	d[7] = tmp0 - tmp7
	d[1] = tmp1 + tmp6
	d[6] = tmp1 - tmp6
	d[2] = tmp2 + tmp5
	d[5] = tmp2 - tmp5
	d[4] = tmp3 + tmp4
	d[3] = tmp3 - tmp4
}
